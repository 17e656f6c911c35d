package crypto

import "errors"

var (
	// ErrKeyNotEstablished indicates no symmetric key is held for the peer.
	ErrKeyNotEstablished = errors.New("symmetric key not established")

	// ErrDecryptionFailed indicates a payload or sealed key did not authenticate.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidPublicKey indicates a public key of the wrong size.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrExchangeInProgress indicates a peer's public key arrived while our
	// own initiation has priority; the peer is expected to answer ours.
	ErrExchangeInProgress = errors.New("key exchange already in progress")

	// ErrNoPendingExchange indicates a sealed key arrived without a key pair to open it.
	ErrNoPendingExchange = errors.New("no pending key exchange")
)
