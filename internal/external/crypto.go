package external

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CredentialCipher seals store access tokens at rest using XChaCha20-Poly1305
// with a random nonce prepended to the ciphertext. The store ID is bound as
// associated data, so a ciphertext copied onto another store row fails to
// open.
type CredentialCipher struct {
	key []byte
}

// NewCredentialCipher creates a cipher from a 32-byte hex-encoded key.
func NewCredentialCipher(hexKey string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credential key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &CredentialCipher{key: key}, nil
}

// Seal encrypts an access token for the given store.
func (c *CredentialCipher) Seal(storeID string, token string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(token), []byte(storeID)), nil
}

// Open decrypts a sealed access token for the given store.
func (c *CredentialCipher) Open(storeID string, sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ciphertext, []byte(storeID))
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(plain), nil
}
