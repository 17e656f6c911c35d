package testing

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/meshchat/transport"
)

func receiveWithTimeout(t *testing.T, ep *Endpoint) (*transport.Packet, transport.Address) {
	t.Helper()

	type result struct {
		pkt  *transport.Packet
		from transport.Address
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, transport.MaxPacketSize)
		n, from, err := ep.Receive(buf)
		if err != nil {
			ch <- result{err: err}
			return
		}
		pkt, err := transport.Decode(buf[:n])
		ch <- result{pkt: pkt, from: from, err: err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.pkt, r.from
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
		return nil, 0
	}
}

func TestMediumFullyConnected(t *testing.T) {
	m := NewMedium()
	a := m.Join(10)
	b := m.Join(20)
	c := m.Join(30)

	require.NoError(t, a.Send(transport.NewPacket(10, 20, 4, []byte("hello"))))

	for _, ep := range []*Endpoint{b, c} {
		pkt, from := receiveWithTimeout(t, ep)
		assert.Equal(t, transport.Address(10), from)
		assert.Equal(t, []byte("hello"), pkt.Payload)
	}

	assert.Len(t, m.DeliveryLog(), 2, "sender does not hear itself")
}

func TestMediumLinks(t *testing.T) {
	m := NewMedium()
	a := m.Join(10)
	b := m.Join(20)
	c := m.Join(30)
	m.Link(10, 30)
	m.Link(30, 20)

	require.NoError(t, a.Send(transport.NewPacket(10, 20, 4, []byte("x"))))
	_, from := receiveWithTimeout(t, c)
	assert.Equal(t, transport.Address(10), from)

	select {
	case <-b.inbox:
		t.Fatal("b is out of range of a")
	default:
	}

	require.NoError(t, c.Send(transport.NewPacket(10, 20, 3, []byte("x"))))
	pkt, from := receiveWithTimeout(t, b)
	assert.Equal(t, transport.Address(30), from, "network-layer sender is the relay")
	assert.Equal(t, transport.Address(10), pkt.Source)

	m.Unlink(30, 20)
	require.NoError(t, c.Send(transport.NewPacket(30, 20, 4, nil)))
	got := m.Deliveries(func(r DeliveryRecord) bool { return r.To == 20 })
	assert.Len(t, got, 1)
}

func TestMediumDropFunc(t *testing.T) {
	m := NewMedium()
	a := m.Join(10)
	m.Join(20)
	m.SetDropFunc(func(from, to transport.Address, pkt *transport.Packet) bool {
		return string(pkt.Payload) == "lost"
	})

	require.NoError(t, a.Send(transport.NewPacket(10, 20, 4, []byte("lost"))))
	require.NoError(t, a.Send(transport.NewPacket(10, 20, 4, []byte("kept"))))

	log := m.DeliveryLog()
	require.Len(t, log, 2)
	assert.True(t, log[0].Dropped)
	assert.False(t, log[1].Dropped)
}

func TestEndpointClose(t *testing.T) {
	m := NewMedium()
	a := m.Join(10)

	done := make(chan error, 1)
	go func() {
		_, _, err := a.Receive(make([]byte, transport.MaxPacketSize))
		done <- err
	}()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, net.ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock on Close")
	}

	assert.ErrorIs(t, a.Send(transport.NewPacket(10, 0, 4, nil)), net.ErrClosed)
	assert.Equal(t, transport.Address(10), a.LocalAddress())
}
