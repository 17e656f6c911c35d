package routing

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/opd-ai/meshchat/reliable"
	"github.com/opd-ai/meshchat/transport"
)

// ForwardFilter remembers which packets this node has already relayed so
// nodes that all hear each other do not bounce a packet forever.
type ForwardFilter struct {
	seen *reliable.Window[uint64]
}

// NewForwardFilter creates a filter remembering the last window packets.
func NewForwardFilter(window int) *ForwardFilter {
	return &ForwardFilter{seen: reliable.NewWindow[uint64](window)}
}

// ShouldForward reports whether pkt has not been relayed yet and records it.
func (f *ForwardFilter) ShouldForward(pkt *transport.Packet) bool {
	return f.seen.Add(Identity(pkt))
}

// Identity hashes every field that stays constant while a packet is relayed:
// all header fields except hops and checksum, plus the payload.
func Identity(pkt *transport.Packet) uint64 {
	var hdr [18]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(pkt.Source))
	binary.BigEndian.PutUint32(hdr[4:], uint32(pkt.Destination))
	binary.BigEndian.PutUint32(hdr[8:], pkt.Seq)
	binary.BigEndian.PutUint32(hdr[12:], pkt.Ack)
	binary.BigEndian.PutUint16(hdr[16:], uint16(pkt.Flags))

	h := fnv.New64a()
	_, _ = h.Write(hdr[:])
	_, _ = h.Write(pkt.Payload)
	return h.Sum64()
}

// PrepareForward spends one hop and reports whether the packet may still be
// relayed. A packet whose budget reaches zero is dropped here; the checksum
// is restamped when the packet is encoded for sending.
func PrepareForward(pkt *transport.Packet) bool {
	return pkt.DecreaseHops() > 0
}
