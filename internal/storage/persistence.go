package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shuma/dashboard/internal/crypto"
)

// File names under the dashboard home directory.
const (
	SecretKeyFile = "secret.key"
	SessionFile   = "session.enc"
)

// SecretKeyPath returns the key file location under home.
func SecretKeyPath(home string) string { return filepath.Join(home, SecretKeyFile) }

// SessionPath returns the sealed session location under home.
func SessionPath(home string) string { return filepath.Join(home, SessionFile) }

// GenerateSecretKey generates a new 32-byte secret key
func GenerateSecretKey() ([]byte, error) {
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// SaveSecretKey saves the secret key to a file
func SaveSecretKey(path string, key []byte) error {
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// LoadSecretKey loads the secret key from a file
func LoadSecretKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}

	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("invalid key length: %d (expected %d)", len(key), crypto.KeySize)
	}

	return key, nil
}

// GetOrCreateSecretKey loads or generates a secret key
func GetOrCreateSecretKey(path string) ([]byte, error) {
	key, err := LoadSecretKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		// An unreadable or corrupt key is replaced; sessions sealed under it
		// are lost, which only forces a new login.
		_ = os.Remove(path)
	}

	key, err = GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	if err := SaveSecretKey(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
