package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	gcmMagic      = "GCM3NCR0"
	saltSize      = 16
	nonceSize     = 12
	pbkdf2Rounds  = 100000
	derivedKeyLen = 32
)

// ErrNotEncrypted is returned when reading an object without the GCM header.
var ErrNotEncrypted = errors.New("object is not encrypted")

// EncryptedStore encrypts objects at rest with AES-256-GCM. The key is derived
// per object from the passphrase and a random salt.
// Layout: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
type EncryptedStore struct {
	Store
	passphrase []byte
}

// NewEncrypted wraps inner. An empty passphrase returns inner unchanged.
func NewEncrypted(inner Store, passphrase string) Store {
	if passphrase == "" {
		return inner
	}
	return &EncryptedStore{Store: inner, passphrase: []byte(passphrase)}
}

func (s *EncryptedStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	sealed, err := s.seal(data)
	if err != nil {
		return "", err
	}
	return s.Store.Put(ctx, key, sealed, contentType)
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.open(data)
}

func (s *EncryptedStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := s.Store.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return s.open(data)
}

func (s *EncryptedStore) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.passphrase, salt, pbkdf2Rounds, derivedKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (s *EncryptedStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (s *EncryptedStore) open(data []byte) ([]byte, error) {
	header := len(gcmMagic) + saltSize + nonceSize
	if len(data) < header+16 || string(data[:len(gcmMagic)]) != gcmMagic {
		return nil, ErrNotEncrypted
	}
	salt := data[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := data[len(gcmMagic)+saltSize : header]

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[header:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}
