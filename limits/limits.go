package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagram is the largest datagram sent or accepted on the multicast group.
	MaxDatagram = 1024

	// HeaderSize is the fixed size of the packet header.
	HeaderSize = 26

	// MaxPayload is the room left for payload bytes inside one datagram.
	MaxPayload = MaxDatagram - HeaderSize

	// EncryptionOverhead is the Poly1305 tag added by secretbox.Seal.
	EncryptionOverhead = 16 // golang.org/x/crypto/nacl/secretbox.Overhead

	// NonceSize is the random secretbox nonce prefixed to every ciphertext.
	NonceSize = 24

	// MaxPlaintextPayload is the largest payload that still fits after encryption.
	MaxPlaintextPayload = MaxPayload - EncryptionOverhead - NonceSize

	// MaxNameLength bounds display names carried in commands and chat records.
	MaxNameLength = 64
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize checks that message is non-empty and at most maxSize
// bytes. The other validators are fixed bounds over it.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidatePlaintextPayload validates a payload that is about to be encrypted.
func ValidatePlaintextPayload(payload []byte) error {
	return ValidateMessageSize(payload, MaxPlaintextPayload)
}

// ValidatePayload validates a wire payload (after encryption, if any).
// Empty payloads are legal on the wire: pure ACKs carry none.
func ValidatePayload(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxPayload)
	}
	return nil
}

// ValidateName validates a display name.
func ValidateName(name string) error {
	return ValidateMessageSize([]byte(name), MaxNameLength)
}
