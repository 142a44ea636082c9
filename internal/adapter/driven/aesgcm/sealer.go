// Package aesgcm seals credential payloads with AES-256-GCM.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Sealer encrypts and decrypts credential payloads. The sealed form is
// base64(nonce || ciphertext || tag) with a 12-byte random nonce per call and
// a 16-byte authentication tag.
type Sealer struct {
	aead cipher.AEAD // nil when no key is configured.
	rand io.Reader
}

// NewSealer builds a Sealer from a 32-byte key. A nil or empty key yields a
// disabled Sealer whose operations return driven.ErrEncryptionKeyNotSet.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return &Sealer{rand: rand.Reader}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &Sealer{aead: gcm, rand: rand.Reader}, nil
}

// Enabled reports whether a key is configured.
func (s *Sealer) Enabled() bool {
	return s.aead != nil
}

// Seal encrypts plaintext. Failures wrap model.ErrEncryption.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.aead == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: rand nonce: %w", model.ErrEncryption, err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal. Corrupt, tampered or foreign blobs
// wrap model.ErrDecryption.
func (s *Sealer) Open(encoded string) (string, error) {
	if s.aead == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %w", model.ErrDecryption, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return "", fmt.Errorf("%w: %w", model.ErrDecryption, errors.New("ciphertext too short"))
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: gcm.Open: %w", model.ErrDecryption, err)
	}

	return string(plaintext), nil
}

// DecodeKey parses a base64-encoded key as produced by `openssl rand -base64 32`.
// An empty string returns a nil key.
func DecodeKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("secret key must decode to %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
