// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// Decrypter turns stored credential ciphertext into plain text.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// PlainText is used when credentials are stored unencrypted.
type PlainText struct{}

func (PlainText) Decrypt(s string) (string, error) { return s, nil }

// AESGCM decrypts base64(nonce || sealed) values with a key derived from a
// shared secret.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM derives a 256-bit key from secret.
func NewAESGCM(secret string) (*AESGCM, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

func (a *AESGCM) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	n := a.aead.NonceSize()
	if len(raw) < n {
		return "", errors.New("ciphertext too short")
	}
	plain, err := a.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Encrypt is the inverse of Decrypt, used when seeding storage records.
func (a *AESGCM) Encrypt(plain string, nonce []byte) (string, error) {
	if len(nonce) != a.aead.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes", a.aead.NonceSize())
	}
	sealed := a.aead.Seal(append([]byte(nil), nonce...), nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
