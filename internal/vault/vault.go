// Package vault seals upstream bearer tokens before they are written to the
// local database.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// Key purposes. Each purpose gets an independent key from the same secret.
const (
	PurposeTokens = "tokens"
	PurposeCSRF   = "csrf"
)

// ErrMalformed is returned by Open for input that was not produced by Seal.
var ErrMalformed = errors.New("vault: malformed sealed value")

// GenerateSecret returns a random hex secret for processes started without one.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeriveKey derives a 32-byte key from secret for purpose using Argon2id.
func DeriveKey(secret, purpose string) []byte {
	salt := []byte("referidos/" + purpose)
	return argon2.IDKey([]byte(secret), salt, argonTime, argonMem, argonPar, keySize)
}

// Sealer encrypts short strings with AES-256-GCM.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives the token key from secret once.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("vault: empty secret")
	}
	block, err := aes.NewCipher(DeriveKey(secret, PurposeTokens))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext. Output format: base64([12-byte nonce][ciphertext]).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(data) < nonceSize {
		return "", ErrMalformed
	}
	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
