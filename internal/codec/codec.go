// Package codec turns small JSON payloads into opaque, tamper-evident strings.
//
// Payloads are sealed with XChaCha20-Poly1305 under a key derived from the
// application key and a purpose label, so a token minted for one purpose
// never opens under another.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Purposes used across the application.
const (
	PurposeCSRF              = "csrf"
	PurposeEmailVerification = "email-verification"
	PurposePasswordReset     = "password-reset"
)

const minAppKeyLen = 32

// ErrInvalidToken is returned for malformed, tampered or foreign tokens.
var ErrInvalidToken = errors.New("invalid token")

// Codec encodes and decodes payloads for a single purpose.
type Codec struct {
	purpose string
	aead    cipher.AEAD
}

// New derives a purpose-bound key from appKey.
func New(appKey, purpose string) (*Codec, error) {
	if len(appKey) < minAppKeyLen {
		return nil, fmt.Errorf("codec: app key must be at least %d bytes", minAppKeyLen)
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, errors.New("codec: purpose is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(appKey), nil, []byte("adminkit/codec/"+purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("codec: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: init cipher: %w", err)
	}

	return &Codec{purpose: purpose, aead: aead}, nil
}

// Purpose returns the label the codec key was derived for.
func (c *Codec) Purpose() string {
	return c.purpose
}

// Encode marshals payload to JSON and seals it.
func (c *Codec) Encode(payload any) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("codec: marshal payload: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(c.purpose))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens token and unmarshals its payload into v.
// Every failure is reported as ErrInvalidToken.
func (c *Codec) Decode(token string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return ErrInvalidToken
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return ErrInvalidToken
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(c.purpose))
	if err != nil {
		return ErrInvalidToken
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}
