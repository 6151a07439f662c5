package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length of a secretbox key.
const KeySize = 32

const nonceSize = 24

// ErrDecrypt is returned when a sealed payload fails authentication.
var ErrDecrypt = errors.New("decryption failed")

// Seal encrypts data with secretbox (XSalsa20-Poly1305).
// Format: [nonce (24 bytes)][encrypted data + auth tag]
//
// Raw bytes are sealed as-is; anything else is JSON encoded first.
func Seal(data any, key *[KeySize]byte) ([]byte, error) {
	var plaintext []byte
	switch v := data.(type) {
	case json.RawMessage:
		plaintext = []byte(v)
	case []byte:
		plaintext = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		plaintext = encoded
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends to the nonce so the result is a single allocation.
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts a payload produced by Seal and decodes the JSON into target.
func Open(encrypted []byte, key *[KeySize]byte, target any) error {
	if len(encrypted) < nonceSize+secretbox.Overhead {
		return fmt.Errorf("encrypted data too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], encrypted[:nonceSize])

	decrypted, ok := secretbox.Open(nil, encrypted[nonceSize:], &nonce, key)
	if !ok {
		return ErrDecrypt
	}

	if err := json.Unmarshal(decrypted, target); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

// KeyFromBytes copies a 32-byte slice into a secretbox key.
func KeyFromBytes(b []byte) (*[KeySize]byte, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d)", len(b), KeySize)
	}
	var key [KeySize]byte
	copy(key[:], b)
	return &key, nil
}
