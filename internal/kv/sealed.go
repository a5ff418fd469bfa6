package kv

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

var errSealed = errors.New("sealed value cannot be opened")

// SealedStore encrypts values before handing them to the wrapped Store.
// Stored format: base64([16-byte salt][12-byte nonce][AES-256-GCM ciphertext]).
type SealedStore struct {
	inner      Store
	passphrase string

	salt []byte

	mu   sync.Mutex
	keys map[string][]byte // salt -> derived key
}

// NewSealedStore wraps inner. Every value written in this process shares one
// salt, so the Argon2id derivation runs once per salt.
func NewSealedStore(inner Store, passphrase string) (*SealedStore, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return &SealedStore{
		inner:      inner,
		passphrase: passphrase,
		salt:       salt,
		keys:       make(map[string][]byte),
	}, nil
}

func (s *SealedStore) deriveKey(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := argon2.IDKey([]byte(s.passphrase), salt, argonTime, argonMem, argonPar, keySize)
	s.keys[string(salt)] = k
	return k
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func (s *SealedStore) seal(plaintext string) (string, error) {
	gcm, err := newGCM(s.deriveKey(s.salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, s.salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *SealedStore) open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errSealed, err)
	}
	if len(data) < saltSize+nonceSize {
		return "", fmt.Errorf("%w: too short", errSealed)
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(s.deriveKey(salt))
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: wrong passphrase or corrupted data", errSealed)
	}
	return string(plaintext), nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	plaintext, err := s.open(sealed)
	if err != nil {
		return "", false, unavailable("open", key, err)
	}
	return plaintext, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return unavailable("seal", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
