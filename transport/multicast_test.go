package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMulticastTransportRejectsBadGroup(t *testing.T) {
	for _, group := range []string{"", "not-an-ip", "192.168.1.10", "ff02::1"} {
		_, err := NewMulticastTransport(MulticastConfig{Group: group, Port: 1231})
		assert.Error(t, err, "group %q", group)
	}
}

func TestNewMulticastTransportUnknownInterface(t *testing.T) {
	_, err := NewMulticastTransport(MulticastConfig{
		Group:     "239.255.42.1",
		Port:      41231,
		Interface: "no-such-interface0",
	})
	assert.Error(t, err)
}

// TestMulticastLoopback needs a host that allows joining a multicast group.
func TestMulticastLoopback(t *testing.T) {
	tr, err := NewMulticastTransport(MulticastConfig{
		Group:    "239.255.42.2",
		Port:     41232,
		Loopback: true,
	})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer tr.Close()

	assert.Equal(t, "239.255.42.2:41232", tr.GroupAddr().String())

	src := tr.LocalAddress()
	if src.IsBroadcast() {
		src = 10
	}
	sent := NewPacket(src, BroadcastAddress, 4, []byte("ALIVE loop"))
	if err := tr.Send(sent); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}

	type result struct {
		n   int
		err error
	}
	buf := make([]byte, MaxPacketSize)
	done := make(chan result, 1)
	go func() {
		n, _, err := tr.Receive(buf)
		done <- result{n, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		got, err := Decode(buf[:res.n])
		require.NoError(t, err)
		assert.Equal(t, sent.Payload, got.Payload)
		assert.Equal(t, src, got.Source)
	case <-time.After(2 * time.Second):
		t.Skip("multicast loopback not delivered on this host")
	}

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "Close is idempotent")

	_, _, err = tr.Receive(buf)
	assert.True(t, errors.Is(err, net.ErrClosed), "got %v", err)
}
