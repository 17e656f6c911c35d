package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// DecryptSymmetric opens a message produced by EncryptSymmetric.
func DecryptSymmetric(ciphertext []byte, key *[KeySize]byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	if key == nil {
		return nil, ErrKeyNotEstablished
	}
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryptionFailed, len(ciphertext))
	}

	var nonce [24]byte
	copy(nonce[:], ciphertext[:len(nonce)])

	out, ok := secretbox.Open(nil, ciphertext[len(nonce):], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: message authentication failed", ErrDecryptionFailed)
	}
	return out, nil
}
