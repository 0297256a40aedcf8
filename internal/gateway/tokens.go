package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by TokenStore.Token when nothing is stored.
var ErrNoToken = errors.New("no stored token")

// TokenStore keeps the bearer token in a file. It never caches: every Token
// call reads the file, so an eviction by a concurrent request is seen by the
// next send.
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the backing file path.
func (s *TokenStore) Path() string { return s.path }

// Token implements oauth2.TokenSource.
func (s *TokenStore) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// Save writes the token with mode 0600, creating the directory if needed.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Evict removes the stored token. A missing file is not an error.
func (s *TokenStore) Evict() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
