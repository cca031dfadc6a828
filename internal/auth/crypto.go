// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// HKDF salt and info bind derived keys to this one use.
	encryptionSalt = "glucobar-credentials"
	encryptionInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when no key material is provided.
	ErrEmptySecret = errors.New("credential secret cannot be empty")

	// ErrDecryptionFailed covers tampered data and a changed secret alike.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrCiphertextTooShort is returned for truncated values.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Encryptor seals values with AES-256-GCM. Output is nonce || ciphertext || tag.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives a 256-bit key from secret with HKDF-SHA256.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(encryptionSalt), []byte(encryptionInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, gcmNonceSize, gcmNonceSize+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	if len(data) < gcmNonceSize+e.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := e.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// RandomSecret returns 32 random bytes, hex encoded.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MaskUsername hides all but the first character and the domain, for logs.
func MaskUsername(username string) string {
	if username == "" {
		return ""
	}
	at := -1
	for i := len(username) - 1; i >= 0; i-- {
		if username[i] == '@' {
			at = i
			break
		}
	}
	if at <= 0 {
		return username[:1] + "***"
	}
	return username[:1] + "***" + username[at:]
}
