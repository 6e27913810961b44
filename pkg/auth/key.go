// Package auth manages the API key that guards the scoring service.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	KeyPrefix = "ds_"

	keyBytes       = 24
	keyFileName    = "api_key"
	keyringService = "dropscore"
	keyringUser    = "api_key"
	fileMode       = 0600
)

// ErrNoKey is returned when no API key has been stored.
var ErrNoKey = errors.New("no API key configured")

// GenerateKey returns a new random API key.
func GenerateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// Store persists the API key in the OS keychain, falling back to a file in
// dir when the keychain is unavailable.
type Store struct {
	dir string
}

// NewStore returns a store whose file fallback lives in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) filePath() string {
	return filepath.Join(s.dir, keyFileName)
}

// Save stores key.
func (s *Store) Save(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key required")
	}

	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return s.saveFile(key)
	}

	// Clean up legacy file if it exists
	os.Remove(s.filePath())
	return nil
}

// Get returns the stored key or ErrNoKey.
func (s *Store) Get() (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if err == nil && key != "" {
		return key, nil
	}

	key, err = s.getFile()
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, key); migrateErr == nil {
		slog.Info("migrated API key from file to OS keychain")
		os.Remove(s.filePath())
	}
	return key, nil
}

// Clear removes the key from both the keychain and the file fallback.
func (s *Store) Clear() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if err := os.Remove(s.filePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing key file: %w", err)
	}
	return nil
}

func (s *Store) saveFile(key string) error {
	if s.dir == "" {
		return errors.New("key directory required")
	}
	return os.WriteFile(s.filePath(), []byte(key), fileMode)
}

func (s *Store) getFile() (string, error) {
	if s.dir == "" {
		return "", ErrNoKey
	}
	b, err := os.ReadFile(s.filePath())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("reading key file %s: %w", s.filePath(), err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", ErrNoKey
	}
	return key, nil
}
