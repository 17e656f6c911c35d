package reliable

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/transport"
)

// ErrWindowFull is returned when a send is attempted while every window slot
// holds an unacknowledged packet. The packet is dropped, not queued.
var ErrWindowFull = errors.New("send window full")

// SendBuffer is the sending half of a connection. It stamps outgoing packets
// with a byte-offset sequence number and holds them until they are
// cumulatively acknowledged.
type SendBuffer struct {
	mu      sync.Mutex
	window  int
	seq     uint32
	order   []uint32
	packets map[uint32]*transport.Packet
}

// NewSendBuffer creates a send buffer holding at most window unacknowledged packets.
func NewSendBuffer(window int) *SendBuffer {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &SendBuffer{
		window:  window,
		packets: make(map[uint32]*transport.Packet, window),
	}
}

// CanSend reports whether another packet fits in the window.
func (b *SendBuffer) CanSend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order) < b.window
}

// Add stamps pkt with the current sequence number, stores a copy for
// retransmission and advances the sequence counter by the packet length.
func (b *SendBuffer) Add(pkt *transport.Packet) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) >= b.window {
		return 0, fmt.Errorf("%w: %d packets unacknowledged", ErrWindowFull, len(b.order))
	}

	seq := b.seq
	pkt.Seq = seq
	b.store(seq, pkt.Clone())

	next := uint64(b.seq) + uint64(pkt.Length())
	if next > math.MaxInt32 {
		next = 0
	}
	b.seq = uint32(next)

	return seq, nil
}

// store records pkt under seq. The caller holds b.mu.
func (b *SendBuffer) store(seq uint32, pkt *transport.Packet) {
	if _, exists := b.packets[seq]; !exists {
		b.order = append(b.order, seq)
	}
	b.packets[seq] = pkt
}

// Ack removes every buffered packet whose sequence number is at most ack
// and returns how many were removed.
func (b *SendBuffer) Ack(ack uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.order[:0]
	removed := 0
	for _, seq := range b.order {
		if seq <= ack {
			delete(b.packets, seq)
			removed++
			continue
		}
		kept = append(kept, seq)
	}
	b.order = kept

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Ack",
			"ack":      ack,
			"removed":  removed,
			"pending":  len(b.order),
		}).Debug("Cumulative acknowledgement applied")
	}
	return removed
}

// Unacked returns copies of the buffered packets in the order they were sent.
func (b *SendBuffer) Unacked() []*transport.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*transport.Packet, 0, len(b.order))
	for _, seq := range b.order {
		out = append(out, b.packets[seq].Clone())
	}
	return out
}

// Len returns the number of unacknowledged packets.
func (b *SendBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Seq returns the sequence number the next packet will carry.
func (b *SendBuffer) Seq() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// ReceiveBuffer is the receiving half of a connection: a sliding acceptance
// window of recently seen sequence numbers. It rejects duplicates and does
// not reorder.
type ReceiveBuffer struct {
	seen *Window[uint32]
}

// NewReceiveBuffer creates a receive buffer remembering window sequence numbers.
func NewReceiveBuffer(window int) *ReceiveBuffer {
	return &ReceiveBuffer{seen: NewWindow[uint32](window)}
}

// Accept reports whether seq is new. New numbers are remembered, evicting
// the oldest once the window is full.
func (b *ReceiveBuffer) Accept(seq uint32) bool {
	return b.seen.Add(seq)
}

// Seen reports whether seq is inside the acceptance window.
func (b *ReceiveBuffer) Seen(seq uint32) bool {
	return b.seen.Contains(seq)
}

// Len returns the number of remembered sequence numbers.
func (b *ReceiveBuffer) Len() int {
	return b.seen.Len()
}

// Connection pairs the two independent halves kept for one peer. The send
// half is touched by the send and retransmission paths, the receive half
// only by the receive path.
type Connection struct {
	Peer    transport.Address
	Send    *SendBuffer
	Receive *ReceiveBuffer
}

// NewConnection allocates both halves for peer.
func NewConnection(peer transport.Address, window int) *Connection {
	return &Connection{
		Peer:    peer,
		Send:    NewSendBuffer(window),
		Receive: NewReceiveBuffer(window),
	}
}
