package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrUnsealFailed = errors.New("sealed value is corrupt or was sealed with another key")

// Sealer encrypts short secrets such as bank account numbers for storage.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the box key from secret, so any non-empty string works
// as ENCRYPTION_KEY.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("encryption key is empty")
	}
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("farm-market sealed fields"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return s, nil
}

// Seal returns base64(nonce || box).
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}
