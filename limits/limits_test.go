package limits

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

// TestEncryptionOverheadMatchesSecretbox verifies that our EncryptionOverhead constant
// matches the actual overhead from golang.org/x/crypto/nacl/secretbox
func TestEncryptionOverheadMatchesSecretbox(t *testing.T) {
	if EncryptionOverhead != secretbox.Overhead {
		t.Errorf("EncryptionOverhead = %d, want %d (secretbox.Overhead)", EncryptionOverhead, secretbox.Overhead)
	}
}

func TestSizeHierarchy(t *testing.T) {
	if MaxPayload != MaxDatagram-HeaderSize {
		t.Errorf("MaxPayload = %d, want %d", MaxPayload, MaxDatagram-HeaderSize)
	}
	if MaxPlaintextPayload+EncryptionOverhead+NonceSize != MaxPayload {
		t.Errorf("encrypted plaintext does not fill exactly one payload")
	}
}

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		maxSize int
		wantErr error
	}{
		{"empty", nil, 10, ErrMessageEmpty},
		{"within limit", []byte("hello"), 10, nil},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.maxSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessageSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePlaintextPayload(t *testing.T) {
	if err := ValidatePlaintextPayload(make([]byte, MaxPlaintextPayload)); err != nil {
		t.Errorf("unexpected error at limit: %v", err)
	}
	if err := ValidatePlaintextPayload(make([]byte, MaxPlaintextPayload+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
	if err := ValidatePlaintextPayload(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestValidatePayloadAllowsEmpty(t *testing.T) {
	if err := ValidatePayload(nil); err != nil {
		t.Errorf("empty payload should be valid on the wire: %v", err)
	}
	if err := ValidatePayload(make([]byte, MaxPayload+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("alice"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateName(""); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := ValidateName(strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}
