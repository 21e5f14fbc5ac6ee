// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keyring stores the OpenRouter API key encrypted at rest.
//
// The key is sealed with AES-256-GCM under a key derived via
// PBKDF2-SHA-256 from a per-install secret kept next to the config
// file. This protects against casual file disclosure (backups, synced
// dotfiles), not against an attacker with full account access.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/orchat/internal/util"
)

// Format: ENC:base64(salt|nonce|ciphertext).
const (
	encryptedPrefix  = "ENC:"
	nonceSize        = 12
	keySize          = 32
	saltSize         = 32
	pbkdf2Iterations = 600000

	secretFile = "install.secret"
	keyFile    = "apikey.enc"
)

var (
	// ErrNoKey indicates no API key has been stored yet.
	ErrNoKey = errors.New("no API key stored")

	// ErrDecryptionFailed indicates a wrong secret or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrInvalidCiphertext indicates the stored blob is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// zeroBytes clears sensitive material after use.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// KEYRING
// =============================================================================

// Keyring seals and unseals the API key under a directory.
type Keyring struct {
	dir string
}

// New creates a keyring rooted at dir, creating it if needed.
func New(dir string) (*Keyring, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keyring dir: %w", err)
	}
	return &Keyring{dir: dir}, nil
}

// Set encrypts and stores the API key.
func (k *Keyring) Set(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key is empty")
	}

	secret, err := k.installSecret()
	if err != nil {
		return err
	}
	defer zeroBytes(secret)

	blob, err := seal(secret, []byte(apiKey))
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(filepath.Join(k.dir, keyFile), []byte(blob), 0600)
}

// Get decrypts and returns the stored API key.
func (k *Keyring) Get() (string, error) {
	data, err := os.ReadFile(filepath.Join(k.dir, keyFile))
	if os.IsNotExist(err) {
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}

	secret, err := k.installSecret()
	if err != nil {
		return "", err
	}
	defer zeroBytes(secret)

	plain, err := unseal(secret, strings.TrimSpace(string(data)))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Clear removes the stored key. Missing key is not an error.
func (k *Keyring) Clear() error {
	err := os.Remove(filepath.Join(k.dir, keyFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether a key is stored.
func (k *Keyring) Exists() bool {
	_, err := os.Stat(filepath.Join(k.dir, keyFile))
	return err == nil
}

// installSecret loads or creates the per-install secret used for key
// derivation.
func (k *Keyring) installSecret() ([]byte, error) {
	path := filepath.Join(k.dir, secretFile)

	data, err := os.ReadFile(path)
	if err == nil && len(data) >= keySize {
		return data, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read install secret: %w", err)
	}

	secret := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generate install secret: %w", err)
	}
	if err := util.AtomicWriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("write install secret: %w", err)
	}
	return secret, nil
}

// =============================================================================
// SEALING
// =============================================================================

// seal encrypts plaintext and returns ENC:base64(salt|nonce|ciphertext).
func seal(secret, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := pbkdf2.Key(secret, salt, pbkdf2Iterations, keySize, sha256.New)
	defer zeroBytes(key)

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// unseal reverses seal.
func unseal(secret []byte, value string) ([]byte, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return nil, ErrInvalidCiphertext
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil || len(blob) < saltSize+nonceSize+1 {
		return nil, ErrInvalidCiphertext
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	key := pbkdf2.Key(secret, salt, pbkdf2Iterations, keySize, sha256.New)
	defer zeroBytes(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
