// Package crypto seals sensitive entry fields at rest.
//
// Ciphertexts are base64 of nonce(12) | tag(16) | ciphertext, matching the
// layout already present in stored rows.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	ErrInvalidKey      = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrMalformedCipher = errors.New("malformed ciphertext")
)

type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds a sealer from a base64 encoded 256-bit key.
func NewAESGCM(encodedKey string) (*AESGCM, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

func (a *AESGCM) Seal(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := a.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (a *AESGCM) Open(payload string) (string, error) {
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(buf) < nonceSize+tagSize {
		return "", ErrMalformedCipher
	}
	nonce, tag, ct := buf[:nonceSize], buf[nonceSize:nonceSize+tagSize], buf[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := a.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Nop stores nothing extra; Seal returns an empty ciphertext.
type Nop struct{}

func (Nop) Seal(string) (string, error) { return "", nil }

func (Nop) Open(string) (string, error) { return "", ErrMalformedCipher }

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
