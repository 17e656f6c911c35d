// Package limits provides centralized datagram and payload size constants and
// validation functions for the meshchat wire protocol.
//
// # Size Hierarchy
//
// Every packet travels as a single multicast datagram, so all limits derive
// from MaxDatagram:
//
//   - MaxDatagram (1024 bytes): the largest datagram a node sends or reads.
//   - HeaderSize (26 bytes): the fixed packet header.
//   - MaxPayload (998 bytes): what remains for the (possibly encrypted) payload.
//   - MaxPlaintextPayload (958 bytes): the largest payload that still fits once
//     the secretbox nonce and Poly1305 tag are added.
//
// # Validation Functions
//
//	err := limits.ValidatePlaintextPayload(payload)
//	if errors.Is(err, limits.ErrMessageTooLarge) {
//	    // refuse the send
//	}
//
// For custom bounds, use ValidateMessageSize.
package limits
