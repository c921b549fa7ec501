package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spec-kit/community-service/internal/session"
)

// fileStore keeps the token pair in a 0600 JSON file.
type fileStore struct {
	path string
}

func newFileStore(path string) *fileStore {
	return &fileStore{path: path}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".sessionctl.json"
	}
	return filepath.Join(dir, "sessionctl", "session.json")
}

// Load returns empty tokens when no session has been stored yet.
func (s *fileStore) Load() (session.Tokens, error) {
	var tokens session.Tokens
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tokens, nil
		}
		return tokens, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return tokens, fmt.Errorf("decode session file: %w", err)
	}
	return tokens, nil
}

func (s *fileStore) Save(tokens session.Tokens) error {
	if tokens == (session.Tokens{}) {
		return s.Delete()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *fileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}
