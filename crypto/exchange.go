package crypto

import (
	"fmt"
	"sync"
)

// State is the progress of a pairwise key exchange.
type State uint8

const (
	// StateNoKey means no exchange has started.
	StateNoKey State = iota
	// StateExchanging means a public key or sealed key is in flight.
	StateExchanging
	// StateEstablished means both sides hold the same symmetric key.
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateNoKey:
		return "no-key"
	case StateExchanging:
		return "exchanging"
	case StateEstablished:
		return "established"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// KeyExchange is the per-peer handshake that agrees a random symmetric key:
//
//	initiator                      responder
//	Initiate        --PUB pk-->    HandlePublicKey
//	HandleSealedKey <--SYM box--
//	                --KEYRECV-->   HandleKeyReceived
//
// The symmetric key only ever travels sealed to the initiator's public key.
type KeyExchange struct {
	mu        sync.Mutex
	state     State
	initiator bool
	keyPair   *KeyPair
	key       *[KeySize]byte
}

// NewKeyExchange creates an exchange in StateNoKey.
func NewKeyExchange() *KeyExchange {
	return &KeyExchange{}
}

// Initiate starts a fresh exchange and returns the public key to send.
// Any previously agreed key is discarded.
func (k *KeyExchange) Initiate() ([]byte, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.keyPair = kp
	k.key = nil
	k.state = StateExchanging
	k.initiator = true

	NewLogger("Initiate").WithFields(SecureFieldHash(kp.Public[:], "public_key")).Debug("Key exchange initiated")

	pub := make([]byte, KeySize)
	copy(pub, kp.Public[:])
	return pub, nil
}

// HandlePublicKey answers a peer's public key with a fresh symmetric key
// sealed to it. When both sides initiated at once, only the side told to
// yield answers; the other returns ErrExchangeInProgress and waits for the
// peer's answer to its own public key.
func (k *KeyExchange) HandlePublicKey(peerPublic []byte, yield bool) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(peerPublic))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == StateExchanging && k.initiator && k.key == nil && !yield {
		return nil, ErrExchangeInProgress
	}

	key, err := GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}
	sealed, err := SealKey(key, peerPublic)
	if err != nil {
		return nil, err
	}

	k.key = key
	k.state = StateExchanging
	k.initiator = false

	NewLogger("HandlePublicKey").WithField("yield", yield).Debug("Symmetric key generated for peer")
	return sealed, nil
}

// HandleSealedKey opens the symmetric key the responder sent and completes
// the exchange on the initiating side.
func (k *KeyExchange) HandleSealedKey(sealed []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.keyPair == nil {
		return ErrNoPendingExchange
	}

	key, err := OpenKey(sealed, k.keyPair)
	if err != nil {
		NewLogger("HandleSealedKey").WithError(err, "decrypt", "open_sealed_key").Warn("Could not open sealed key")
		return err
	}

	k.key = key
	k.state = StateEstablished
	NewLogger("HandleSealedKey").WithField("state", k.state.String()).Info("Key exchange established")
	return nil
}

// HandleKeyReceived completes the exchange on the responding side.
func (k *KeyExchange) HandleKeyReceived() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key == nil {
		return ErrKeyNotEstablished
	}
	if k.state != StateEstablished {
		k.state = StateEstablished
		NewLogger("HandleKeyReceived").WithField("state", k.state.String()).Info("Key exchange established")
	}
	return nil
}

// Confirm marks the exchange established when the peer has demonstrably
// started using the key we hold. It reports whether the state changed.
func (k *KeyExchange) Confirm() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key == nil || k.state == StateEstablished {
		return false
	}
	k.state = StateEstablished
	NewLogger("Confirm").Debug("Key exchange confirmed by peer traffic")
	return true
}

// Key returns a copy of the symmetric key if one is held, established or not.
func (k *KeyExchange) Key() (*[KeySize]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return nil, false
	}
	key := *k.key
	return &key, true
}

// EstablishedKey returns the key only once the exchange has completed.
func (k *KeyExchange) EstablishedKey() (*[KeySize]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil || k.state != StateEstablished {
		return nil, false
	}
	key := *k.key
	return &key, true
}

// State returns the current state.
func (k *KeyExchange) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Established reports whether the exchange has completed.
func (k *KeyExchange) Established() bool {
	return k.State() == StateEstablished
}
