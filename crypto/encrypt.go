package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/opd-ai/meshchat/limits"
)

// Nonce is a 24-byte value used for encryption.
type Nonce [limits.NonceSize]byte

// Overhead is the number of bytes EncryptSymmetric adds to a message.
const Overhead = limits.NonceSize + secretbox.Overhead

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	_, err := rand.Read(nonce[:])
	if err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// EncryptSymmetric encrypts a message with a symmetric key. The random
// nonce is prefixed to the ciphertext.
func EncryptSymmetric(message []byte, key *[KeySize]byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("empty message")
	}
	if key == nil {
		return nil, ErrKeyNotEstablished
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(nonce), len(nonce)+len(message)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, message, (*[24]byte)(&nonce), key), nil
}
