// Package auth stores the bearer token used to download model artifacts.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// TokenEnvVar overrides any stored token.
	TokenEnvVar = "READMIT_ARTIFACT_TOKEN"

	keyringService = "readmit"
	keyringUser    = "artifact_token"
	tokenFileName  = "artifact_token"
	fileMode       = 0o600
)

// ErrNoToken is returned when no token is configured anywhere.
var ErrNoToken = errors.New("no artifact token configured")

// Source says where a token was found.
type Source string

const (
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
)

// Store keeps the token in the OS keychain, with a file in Dir as the
// fallback when no keychain is available.
type Store struct {
	Dir string
}

// NewStore returns a store whose fallback file lives in dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) filePath() string {
	return filepath.Join(s.Dir, tokenFileName)
}

// Save writes the token to the keychain, or to the fallback file.
func (s *Store) Save(token string) (Source, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token is empty")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		if err := os.WriteFile(s.filePath(), []byte(token), fileMode); err != nil {
			return "", fmt.Errorf("writing token file: %w", err)
		}
		return SourceFile, nil
	}

	// Clean up legacy file if it exists
	_ = os.Remove(s.filePath())
	return SourceKeyring, nil
}

// Get returns the token from the environment, the keychain or the file,
// in that order.
func (s *Store) Get() (string, Source, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnvVar)); v != "" {
		return v, SourceEnv, nil
	}

	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, SourceKeyring, nil
	}

	b, err := os.ReadFile(s.filePath())
	if errors.Is(err, os.ErrNotExist) {
		return "", "", ErrNoToken
	}
	if err != nil {
		return "", "", fmt.Errorf("reading token file %s: %w", s.filePath(), err)
	}
	token = strings.TrimSpace(string(b))
	if token == "" {
		return "", "", ErrNoToken
	}
	return token, SourceFile, nil
}

// Clear removes the token from the keychain and the fallback file.
func (s *Store) Clear() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if err := os.Remove(s.filePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
