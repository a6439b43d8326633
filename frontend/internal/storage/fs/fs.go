// Package fs persists small client state files (session token, last-known
// channel status) under the configured state directory.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Load when nothing was saved under the key.
var ErrNotFound = errors.New("state not found")

type Storage struct {
	rootPath string
}

func New(rootPath string) (*Storage, error) {
	p := filepath.Clean(rootPath)

	// State holds credentials, so the directory is private to the user.
	if err := os.MkdirAll(p, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", p, err)
	}

	return &Storage{rootPath: p}, nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid state key %q", key)
	}
	return filepath.Join(s.rootPath, key+".json"), nil
}

// Save writes v as JSON. The file is replaced atomically and readable only by
// the owner.
func (s *Storage) Save(key string, v any) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.rootPath, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Load decodes the state saved under key into v.
func (s *Storage) Load(key string, v any) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Delete removes the state saved under key. Missing state is not an error.
func (s *Storage) Delete(key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
