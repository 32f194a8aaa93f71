// Package credstore holds the bearer token across process restarts. The
// token is encrypted at rest under a per-install random key so a copied
// credentials file is useless without the key file next to it.
package credstore

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
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	keyFileName   = "install.key"
	tokenFileName = "token.cred"
)

// ErrNotFound is returned by Load when no token is persisted.
var ErrNotFound = errors.New("credstore: no token stored")

type Store struct {
	dir string

	mu  sync.Mutex
	key []byte
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Save(tok string) error {
	if tok == "" {
		return errors.New("credstore: empty token")
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}

	sealed, err := seal(key, []byte(tok))
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, tokenFileName), []byte(base64.StdEncoding.EncodeToString(sealed)+"\n"))
}

func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, tokenFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(trimNewline(string(data)))
	if err != nil {
		return "", fmt.Errorf("credstore: corrupt token file: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return "", err
	}

	plain, err := open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("credstore: decrypt failed: %w", err)
	}
	return string(plain), nil
}

// Delete removes the persisted token. Deleting an absent token is not an
// error.
func (s *Store) Delete() error {
	err := os.Remove(filepath.Join(s.dir, tokenFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) loadKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, keyFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(trimNewline(string(data)))
	if err != nil || len(raw) != 32 {
		return nil, errors.New("credstore: corrupt key file")
	}

	s.key = raw
	return raw, nil
}

func (s *Store) loadOrCreateKey() ([]byte, error) {
	key, err := s.loadKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, keyFileName), []byte(base64.StdEncoding.EncodeToString(raw)+"\n")); err != nil {
		return nil, err
	}

	s.key = raw
	return raw, nil
}

// deriveKey stretches the install key into an AES-256 key bound to the
// token-encryption purpose.
func deriveKey(installKey []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, installKey, nil, []byte("commchat-token-v1"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

func seal(installKey, plain []byte) ([]byte, error) {
	aead, err := newAEAD(installKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func open(installKey, sealed []byte) ([]byte, error) {
	aead, err := newAEAD(installKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func newAEAD(installKey []byte) (cipher.AEAD, error) {
	key, err := deriveKey(installKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
