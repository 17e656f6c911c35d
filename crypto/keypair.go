package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size of public, private and symmetric keys.
const KeySize = 32

// KeyPair is an X25519 key pair used only to receive a peer's symmetric key.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	if len(dh.Public) != KeySize || len(dh.Private) != KeySize {
		return nil, fmt.Errorf("generate key pair: unexpected key length %d/%d", len(dh.Public), len(dh.Private))
	}

	kp := &KeyPair{}
	copy(kp.Public[:], dh.Public)
	copy(kp.Private[:], dh.Private)
	return kp, nil
}

// GenerateSymmetricKey creates a random payload key.
func GenerateSymmetricKey() (*[KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}
	return &key, nil
}

// SealKey encrypts a symmetric key to the holder of peerPublic. Only the
// matching private key can recover it; the sender stays anonymous.
func SealKey(key *[KeySize]byte, peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(peerPublic))
	}
	var pub [KeySize]byte
	copy(pub[:], peerPublic)

	sealed, err := box.SealAnonymous(nil, key[:], &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	return sealed, nil
}

// OpenKey recovers a symmetric key sealed to kp.
func OpenKey(sealed []byte, kp *KeyPair) (*[KeySize]byte, error) {
	plain, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
	if !ok {
		return nil, fmt.Errorf("%w: sealed key did not open", ErrDecryptionFailed)
	}
	if len(plain) != KeySize {
		return nil, fmt.Errorf("%w: sealed key has %d bytes", ErrDecryptionFailed, len(plain))
	}

	var key [KeySize]byte
	copy(key[:], plain)
	return &key, nil
}

// GroupKey derives the well-known fallback key shared by every node that
// knows secret. It hides nothing from anyone who knows the secret.
func GroupKey(secret string) *[KeySize]byte {
	h := noise.HashSHA256.Hash()
	h.Write([]byte(secret))

	var key [KeySize]byte
	copy(key[:], h.Sum(nil))
	return &key
}
