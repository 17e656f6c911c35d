package meshchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/reliable"
	testsim "github.com/opd-ai/meshchat/testing"
	"github.com/opd-ai/meshchat/transport"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()

	assert.Equal(t, "228.0.0.4", o.Group)
	assert.Equal(t, 1231, o.Port)
	assert.Equal(t, "Chatroom", o.MainRoom)
	assert.Equal(t, 20, o.WindowSize)
	assert.Equal(t, int16(4), o.MaxHops)
	assert.Equal(t, 100*time.Millisecond, o.RetransmitInterval)
	assert.Equal(t, 3*time.Second, o.AliveInterval)
	assert.Equal(t, 9*time.Second, o.InactivityLimit)
	assert.NoError(t, o.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"unicast group", func(o *Options) { o.Group = "192.168.1.1" }},
		{"ipv6 group", func(o *Options) { o.Group = "ff02::1" }},
		{"port zero", func(o *Options) { o.Port = 0 }},
		{"port too large", func(o *Options) { o.Port = 70000 }},
		{"empty name", func(o *Options) { o.Name = "" }},
		{"name with space", func(o *Options) { o.Name = "two words" }},
		{"zero window", func(o *Options) { o.WindowSize = 0 }},
		{"zero hops", func(o *Options) { o.MaxHops = 0 }},
		{"zero retransmit", func(o *Options) { o.RetransmitInterval = 0 }},
		{"inactivity below alive", func(o *Options) { o.InactivityLimit = o.AliveInterval }},
		{"empty main room", func(o *Options) { o.MainRoom = "" }},
		{"negative event buffer", func(o *Options) { o.EventBuffer = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
		})
	}
}

func TestOptionsValidateSkipsSocketSettingsWithTransport(t *testing.T) {
	o := NewOptions()
	o.Group = "not-an-ip"
	o.Port = -1
	o.Transport = testsim.NewMedium().Join(10)
	assert.NoError(t, o.Validate())
}

func TestNewDerivesAddressFromTransport(t *testing.T) {
	medium := testsim.NewMedium()
	o := quietOptions(medium, 0, "alice")
	o.Transport = medium.Join(42)

	n, err := New(o)
	require.NoError(t, err)
	defer n.Kill()

	assert.Equal(t, transport.Address(42), n.Address())
	assert.Equal(t, "alice", n.Name())
	assert.Equal(t, DefaultMainRoom, n.MainRoom())
}

func TestNewWithoutAddress(t *testing.T) {
	medium := testsim.NewMedium()
	o := quietOptions(medium, 0, "alice")
	o.Transport = medium.Join(0)

	_, err := New(o)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestAddPeer(t *testing.T) {
	medium := testsim.NewMedium()
	n, rec := newTestNode(t, medium, 10, "alice")
	medium.Join(20)

	require.NoError(t, n.AddPeer(20, "bob"))

	p, ok := n.Peer(20)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Name)

	_, ok = n.Connection(20)
	assert.True(t, ok, "adding a peer opens a connection")

	members, ok := n.Destination(DefaultMainRoom)
	require.True(t, ok)
	assert.Equal(t, []transport.Address{20}, members)

	assert.Equal(t, crypto.StateExchanging, n.KeyState(20))
	assert.Equal(t, 1, rec.count(EventPeerJoined))

	pubs := medium.Deliveries(func(r testsim.DeliveryRecord) bool {
		return r.From == 10 && r.To == 20 && r.Packet.Destination == 20
	})
	assert.Len(t, pubs, 1, "the key exchange starts with one public key")

	// Adding again only refreshes.
	require.NoError(t, n.AddPeer(20, "bob"))
	assert.Equal(t, 1, rec.count(EventPeerJoined))
}

func TestAddPeerRejectsReservedAddresses(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	assert.ErrorIs(t, n.AddPeer(transport.BroadcastAddress, "x"), ErrInvalidAddress)
	assert.ErrorIs(t, n.AddPeer(10, "me"), ErrInvalidAddress)
	assert.Empty(t, n.Peers())
}

func TestRemovePeer(t *testing.T) {
	medium := testsim.NewMedium()
	n, rec := newTestNode(t, medium, 10, "alice")

	require.NoError(t, n.AddPeer(20, "bob"))
	require.NoError(t, n.AddPeer(30, "carol"))
	require.NoError(t, n.AddDestination("pair", 20))

	require.NoError(t, n.RemovePeer(20))

	_, ok := n.Peer(20)
	assert.False(t, ok)
	_, ok = n.Connection(20)
	assert.False(t, ok)
	assert.Equal(t, crypto.StateNoKey, n.KeyState(20))

	members, _ := n.Destination(DefaultMainRoom)
	assert.Equal(t, []transport.Address{30}, members)
	_, ok = n.Destination("pair")
	assert.False(t, ok, "empty private destinations are dropped")

	left := rec.ofType(EventPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0].Peer.Name)

	var nodeErr *NodeError
	err := n.RemovePeer(20)
	require.ErrorAs(t, err, &nodeErr)
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Equal(t, transport.Address(20), nodeErr.Addr)
}

func TestAddDestination(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	require.NoError(t, n.AddDestination("team", 30, 20))
	members, ok := n.Destination("team")
	require.True(t, ok)
	assert.Equal(t, []transport.Address{20, 30}, members)

	// Replaces rather than merges.
	require.NoError(t, n.AddDestination("team", 40))
	members, _ = n.Destination("team")
	assert.Equal(t, []transport.Address{40}, members)

	assert.ErrorIs(t, n.AddDestination(DefaultMainRoom, 20), ErrReservedDestination)
	assert.ErrorIs(t, n.AddDestination("", 20), ErrUnknownDestination)
	assert.ErrorIs(t, n.AddDestination("bad", 0), ErrInvalidAddress)
	assert.ErrorIs(t, n.AddDestination("bad", 10), ErrInvalidAddress)

	all := n.Destinations()
	assert.Contains(t, all, DefaultMainRoom)
	assert.Contains(t, all, "team")
}

func TestSendToUnknownDestination(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	assert.ErrorIs(t, n.SendChatMessage("nowhere", "hi"), ErrUnknownDestination)
	assert.ErrorIs(t, n.SendText("nowhere", "hi"), ErrUnknownDestination)
}

func TestSendWithoutConnection(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	require.NoError(t, n.AddDestination("ghost", 99))
	err := n.SendChatMessage("ghost", "hello")
	assert.ErrorIs(t, err, ErrConnectionNotOpen)
}

func TestSendRefusedWhenWindowFull(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice", func(o *Options) { o.WindowSize = 3 })

	require.NoError(t, n.AddPeer(20, "bob")) // the public key takes one slot
	require.NoError(t, n.SendText(DefaultMainRoom, "one"))
	require.NoError(t, n.SendText(DefaultMainRoom, "two"))

	err := n.SendText(DefaultMainRoom, "three")
	assert.True(t, errors.Is(err, reliable.ErrWindowFull), "got %v", err)
	assert.Equal(t, uint64(1), n.Stats().WindowFull)
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")
	require.NoError(t, n.AddPeer(20, "bob"))

	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'x'
	}
	assert.Error(t, n.SendText(DefaultMainRoom, string(big)))
}

func TestAcknowledge(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")
	require.NoError(t, n.AddPeer(20, "bob"))

	conn, ok := n.Connection(20)
	require.True(t, ok)
	require.Equal(t, 1, conn.Send.Len())

	require.NoError(t, n.Acknowledge(20, conn.Send.Seq()))
	assert.Equal(t, 0, conn.Send.Len())

	assert.ErrorIs(t, n.Acknowledge(99, 1), ErrConnectionNotOpen)
}

func TestOpenCloseConnection(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	conn := n.OpenConnection(20)
	assert.Same(t, conn, n.OpenConnection(20))
	assert.True(t, n.CloseConnection(20))
	assert.False(t, n.CloseConnection(20))
}

func TestSetName(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	assert.ErrorIs(t, n.SetName("two words"), messaging.ErrInvalidName)
	assert.Equal(t, "alice", n.Name())

	assert.ErrorIs(t, n.SetName(DefaultMainRoom), messaging.ErrInvalidName)
	assert.Equal(t, "alice", n.Name())

	require.NoError(t, n.SetName("alicia"))
	assert.Equal(t, "alicia", n.Name())
}

func TestPeerByName(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	require.NoError(t, n.AddPeer(30, "bob"))
	require.NoError(t, n.AddPeer(20, "bob"))
	require.NoError(t, n.AddPeer(40, ""))

	p, ok := n.PeerByName("bob")
	require.True(t, ok)
	assert.Equal(t, transport.Address(20), p.Address, "lowest address wins")

	p, ok = n.PeerByName(transport.Address(40).String())
	require.True(t, ok)
	assert.Equal(t, transport.Address(40), p.Address)

	_, ok = n.PeerByName("carol")
	assert.False(t, ok)
}

func TestStartAndKill(t *testing.T) {
	medium := testsim.NewMedium()
	n, rec := newTestNode(t, medium, 10, "alice")

	require.NoError(t, n.Start(context.Background()))
	assert.True(t, n.IsRunning())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyRunning)

	notices := rec.ofType(EventNotice)
	require.NotEmpty(t, notices)
	assert.Equal(t, "Connected.", notices[0].Text)

	n.Kill()
	n.Kill()
	assert.False(t, n.IsRunning())
	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)
	assert.Equal(t, 1, rec.count(EventNotice), "closing the socket is not reported as a lost connection")
}

func TestKillBroadcastsPart(t *testing.T) {
	medium := testsim.NewMedium()
	a, recA := newTestNode(t, medium, 10, "alice")
	b, _ := newTestNode(t, medium, 20, "bob")

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := a.Peer(20)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	b.Kill()

	require.Eventually(t, func() bool {
		return recA.count(EventPeerLeft) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "left", recA.ofType(EventPeerLeft)[0].Text)
}

func TestContextCancelStopsNode(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !n.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsChannel(t *testing.T) {
	medium := testsim.NewMedium()
	n, _ := newTestNode(t, medium, 10, "alice", func(o *Options) { o.EventBuffer = 1 })

	require.NoError(t, n.AddPeer(20, "bob"))
	require.NoError(t, n.AddPeer(30, "carol"))

	ev := <-n.Events()
	assert.Equal(t, EventPeerJoined, ev.Type)
	assert.Equal(t, transport.Address(20), ev.Peer.Address)
	assert.Equal(t, uint64(1), n.Stats().EventsDropped)

	n.Kill()
	_, open := <-n.Events()
	assert.False(t, open)
}

func TestEvictInactive(t *testing.T) {
	medium := testsim.NewMedium()
	clock := newMockTimeProvider()
	n, rec := newTestNode(t, medium, 10, "alice", func(o *Options) {
		o.TimeProvider = clock
		o.AliveInterval = 3 * time.Second
		o.InactivityLimit = 9 * time.Second
	})

	require.NoError(t, n.AddPeer(20, "bob"))
	require.NoError(t, n.AddPeer(30, "carol"))

	clock.Advance(5 * time.Second)
	n.peers.Touch(30)
	assert.Zero(t, n.evictInactive())

	clock.Advance(5 * time.Second)

	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts[i] = n.evictInactive()
		}(i)
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 1, total, "bob is evicted exactly once")

	left := rec.ofType(EventPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, transport.Address(20), left[0].Peer.Address)
	assert.Equal(t, "inactive", left[0].Text)

	_, ok := n.Connection(20)
	assert.False(t, ok)
	_, ok = n.Peer(30)
	assert.True(t, ok, "carol was seen recently")
}

// TestJoinRacingLeaveStaysConsistent interleaves eviction with a presence
// beacon from the same peer. Whichever wins, a known peer must have a
// connection, a key exchange and a main-room entry, and a forgotten peer
// none of them.
func TestJoinRacingLeaveStaysConsistent(t *testing.T) {
	medium := testsim.NewMedium()
	n, rec := newTestNode(t, medium, 20, "bob")

	const peerAddr = transport.Address(10)
	for i := 0; i < 200; i++ {
		require.NoError(t, n.AddPeer(peerAddr, "alice"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			n.removePeer(peerAddr, "inactive")
		}()
		go func() {
			defer wg.Done()
			n.handleAlive(peerAddr, "alice")
		}()
		wg.Wait()

		_, known := n.Peer(peerAddr)
		_, hasConn := n.Connection(peerAddr)
		members, _ := n.Destination(DefaultMainRoom)
		inMainRoom := len(members) == 1 && members[0] == peerAddr

		require.Equal(t, known, hasConn, "iteration %d: connection", i)
		require.Equal(t, known, inMainRoom, "iteration %d: main room", i)
		require.Equal(t, known, n.KeyState(peerAddr) != crypto.StateNoKey, "iteration %d: key", i)
	}

	joined := rec.count(EventPeerJoined)
	left := rec.count(EventPeerLeft)
	_, known := n.Peer(peerAddr)
	if known {
		assert.Equal(t, left+1, joined)
	} else {
		assert.Equal(t, left, joined)
	}
}
