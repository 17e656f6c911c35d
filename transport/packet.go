package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/meshchat/limits"
)

const (
	// HeaderSize is the fixed packet header size.
	HeaderSize = limits.HeaderSize

	// MaxPacketSize is the largest encoded packet.
	MaxPacketSize = limits.MaxDatagram
)

// Header field offsets.
const (
	srcPos = 0
	dstPos = 4
	seqPos = 8
	ackPos = 12
	flgPos = 16
	hopPos = 18
	lenPos = 20
	csmPos = 24
	pldPos = 26
)

// Flag indexes are 1-based: flag n lives in bit n-1.
const (
	FlagAck          = 1
	FlagChatMessage  = 2
	FlagEncryption   = 3
	FlagKeyExchanged = 4
)

var (
	// ErrPacketTooShort indicates a buffer shorter than the header.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrInvalidLength indicates a length field that does not fit the buffer.
	ErrInvalidLength = errors.New("invalid packet length")

	// ErrChecksumMismatch indicates a corrupted packet.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrPacketTooLarge indicates a packet that does not fit in one datagram.
	ErrPacketTooLarge = errors.New("packet too large")
)

// Flags is the 16-bit flag set carried in every header.
type Flags uint16

// FlagsFromBools builds a flag set: the first value maps to flag 1 (the
// least significant bit). At most 15 values are used.
func FlagsFromBools(flags ...bool) Flags {
	var f Flags
	for n := 0; n < len(flags) && n < 15; n++ {
		if flags[n] {
			f |= 1 << n
		}
	}
	return f
}

// IsSet reports whether flag n (1-based) is set.
func (f Flags) IsSet(n int) bool {
	if n < 1 || n > 16 {
		return false
	}
	return f&(1<<(n-1)) != 0
}

// With returns f with flag n set.
func (f Flags) With(n int) Flags {
	if n < 1 || n > 16 {
		return f
	}
	return f | 1<<(n-1)
}

// Without returns f with flag n cleared.
func (f Flags) Without(n int) Flags {
	if n < 1 || n > 16 {
		return f
	}
	return f &^ (1 << (n - 1))
}

// Packet is one datagram on the multicast group.
//
// Wire format (big endian):
//
//	[source 4][destination 4][seq 4][ack 4][flags 2][hops 2][length 4][checksum 2][payload]
type Packet struct {
	Source      Address
	Destination Address
	Seq         uint32
	Ack         uint32
	Flags       Flags
	Hops        int16
	Checksum    uint16
	Payload     []byte
}

// NewPacket creates a packet from source to destination with the given hop budget.
func NewPacket(source, destination Address, hops int16, payload []byte) *Packet {
	return &Packet{
		Source:      source,
		Destination: destination,
		Hops:        hops,
		Payload:     payload,
	}
}

// Length returns the total encoded length, header included.
func (p *Packet) Length() int {
	return HeaderSize + len(p.Payload)
}

// IsFlagSet reports whether flag n (1-based) is set.
func (p *Packet) IsFlagSet(n int) bool {
	return p.Flags.IsSet(n)
}

// SetPayload replaces the payload in place; the length follows it.
func (p *Packet) SetPayload(payload []byte) {
	p.Payload = payload
}

// DecreaseHops decrements the hop budget, saturating at zero, and returns
// the remaining hops.
func (p *Packet) DecreaseHops() int16 {
	if p.Hops > 0 {
		p.Hops--
	}
	return p.Hops
}

// Clone returns a deep copy.
func (p *Packet) Clone() *Packet {
	c := *p
	if p.Payload != nil {
		c.Payload = append([]byte(nil), p.Payload...)
	}
	return &c
}

// Encode serializes the packet, stamping its length and checksum.
func (p *Packet) Encode() ([]byte, error) {
	length := p.Length()
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPacketTooLarge, length, MaxPacketSize)
	}

	buf := make([]byte, length)
	binary.BigEndian.PutUint32(buf[srcPos:], uint32(p.Source))
	binary.BigEndian.PutUint32(buf[dstPos:], uint32(p.Destination))
	binary.BigEndian.PutUint32(buf[seqPos:], p.Seq)
	binary.BigEndian.PutUint32(buf[ackPos:], p.Ack)
	binary.BigEndian.PutUint16(buf[flgPos:], uint16(p.Flags))
	binary.BigEndian.PutUint16(buf[hopPos:], uint16(p.Hops))
	binary.BigEndian.PutUint32(buf[lenPos:], uint32(length))
	copy(buf[pldPos:], p.Payload)

	p.Checksum = Checksum(buf)
	binary.BigEndian.PutUint16(buf[csmPos:], p.Checksum)

	return buf, nil
}

// Decode parses and verifies a packet. Bytes past the length field are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrPacketTooShort, len(data), HeaderSize)
	}

	length := binary.BigEndian.Uint32(data[lenPos:])
	if length < HeaderSize || int64(length) > int64(len(data)) {
		return nil, fmt.Errorf("%w: length field %d, buffer %d", ErrInvalidLength, length, len(data))
	}
	data = data[:length]

	checksum := binary.BigEndian.Uint16(data[csmPos:])
	if calculated := Checksum(data); calculated != checksum {
		return nil, fmt.Errorf("%w: got %#04x, calculated %#04x", ErrChecksumMismatch, checksum, calculated)
	}

	p := &Packet{
		Source:      Address(binary.BigEndian.Uint32(data[srcPos:])),
		Destination: Address(binary.BigEndian.Uint32(data[dstPos:])),
		Seq:         binary.BigEndian.Uint32(data[seqPos:]),
		Ack:         binary.BigEndian.Uint32(data[ackPos:]),
		Flags:       Flags(binary.BigEndian.Uint16(data[flgPos:])),
		Hops:        int16(binary.BigEndian.Uint16(data[hopPos:])),
		Checksum:    checksum,
	}
	if int(length) > HeaderSize {
		p.Payload = make([]byte, int(length)-HeaderSize)
		copy(p.Payload, data[pldPos:])
	}

	return p, nil
}

// Checksum computes the one's complement of the 16-bit sum of every
// big-endian word in data except the checksum field. A trailing odd byte is
// not summed.
func Checksum(data []byte) uint16 {
	var sum uint16
	for n := 0; n < len(data)-1; n += 2 {
		if n == csmPos {
			continue
		}
		sum += binary.BigEndian.Uint16(data[n:])
	}
	return ^sum
}

// Verify reports whether an encoded packet carries a valid checksum.
func Verify(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}
	return binary.BigEndian.Uint16(data[csmPos:]) == Checksum(data)
}
