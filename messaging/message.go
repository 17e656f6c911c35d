package messaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opd-ai/meshchat/transport"
)

// ChatMessageVersion is the record version written by MarshalBinary.
const ChatMessageVersion = 1

// Style bits for ChatMessage.Style.
const (
	StyleBold uint8 = 1 << iota
	StyleItalic
)

var (
	// ErrUnsupportedVersion indicates a chat record written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported chat message version")

	// ErrTruncated indicates a chat record that ends early.
	ErrTruncated = errors.New("chat message truncated")

	// ErrFieldTooLong indicates a string that does not fit its length prefix.
	ErrFieldTooLong = errors.New("chat message field too long")
)

// ChatMessage is the record carried by packets flagged CHATMESSAGE.
//
// Wire format (big endian, strings prefixed by a 2-byte length):
//
//	[version 1][sender 4][timestamp ms 8][name][color 4][text color 4]
//	[font][font size 2][style 1][destination][text]
type ChatMessage struct {
	Sender      transport.Address
	Timestamp   time.Time
	Name        string
	Color       uint32
	TextColor   uint32
	Font        string
	FontSize    uint16
	Style       uint8
	Destination string
	Text        string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *ChatMessage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+len(m.Name)+len(m.Font)+len(m.Destination)+len(m.Text))

	buf = append(buf, ChatMessageVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(m.Sender))
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Timestamp.UnixMilli()))

	var err error
	if buf, err = appendString(buf, "name", m.Name); err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint32(buf, m.Color)
	buf = binary.BigEndian.AppendUint32(buf, m.TextColor)
	if buf, err = appendString(buf, "font", m.Font); err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, m.FontSize)
	buf = append(buf, m.Style)
	if buf, err = appendString(buf, "destination", m.Destination); err != nil {
		return nil, err
	}
	if buf, err = appendString(buf, "text", m.Text); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *ChatMessage) UnmarshalBinary(data []byte) error {
	r := reader{data: data}

	version := r.uint8()
	if r.err == nil && version != ChatMessageVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var out ChatMessage
	out.Sender = transport.Address(r.uint32())
	out.Timestamp = time.UnixMilli(int64(r.uint64()))
	out.Name = r.string()
	out.Color = r.uint32()
	out.TextColor = r.uint32()
	out.Font = r.string()
	out.FontSize = r.uint16()
	out.Style = r.uint8()
	out.Destination = r.string()
	out.Text = r.string()

	if r.err != nil {
		return r.err
	}
	*m = out
	return nil
}

func appendString(buf []byte, field, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrFieldTooLong, field, len(s))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

// reader consumes a record front to back and remembers the first error.
type reader struct {
	data []byte
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, len(r.data))
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) string() string {
	n := r.uint16()
	if b := r.take(int(n)); b != nil {
		return string(b)
	}
	return ""
}
