// Package messaging defines what travels inside meshchat packet payloads.
//
// # Commands
//
// Control payloads are whitespace separated tokens, a command code
// followed by its arguments:
//
//	ALIVE <name>            presence beacon
//	PRIV <room>             open a private chat
//	NMCHG <old> <new>       name change
//	PUB <base64 key>        key exchange, step one
//	SYM <base64 sealed key> key exchange, step two
//	KEYRECV                 key exchange, completion
//	PART <name>             graceful leave
//
// Names travel as single tokens; ValidateName rejects whitespace.
//
// # Chat messages
//
// Packets flagged CHATMESSAGE carry a ChatMessage record in a versioned,
// length-prefixed binary layout:
//
//	msg := &messaging.ChatMessage{Sender: self, Name: "alice", Destination: "Chatroom", Text: "hi"}
//	payload, err := msg.MarshalBinary()
package messaging
