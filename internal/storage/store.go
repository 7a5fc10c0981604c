// Package storage persists cache artifacts as individual JSON files with
// atomic replacement, so readers of the cache directory never observe a
// partially written file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes and reads named JSON artifacts inside a cache directory.
// There is no cross-artifact transaction; each write is atomic on its own.
type Store interface {
	// WriteArtifact serializes v and atomically replaces <name>.json.
	WriteArtifact(name string, v any) error

	// ReadArtifact reads <name>.json into v. Returns os.ErrNotExist when the
	// artifact has never been written.
	ReadArtifact(name string, v any) error

	// ReadRaw returns the raw bytes of <name>.json.
	ReadRaw(name string) ([]byte, error)

	// RemoveArtifact deletes <name>.json. Missing artifacts are not an error.
	RemoveArtifact(name string) error

	// Dir returns the cache directory path.
	Dir() string
}

// fileStore implements Store on the local filesystem.
type fileStore struct {
	dir string
}

// NewFileStore creates a Store rooted at dir.
func NewFileStore(dir string) Store {
	return &fileStore{dir: dir}
}

func (s *fileStore) Dir() string {
	return s.dir
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// WriteArtifact writes v to a temporary file and renames it into place. On
// failure the temp file is removed and any prior artifact is left untouched.
func (s *fileStore) WriteArtifact(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}

	filePath := s.path(name)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary file for artifact %s: %w", name, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename artifact %s into place: %w", name, err)
	}

	return nil
}

// ReadArtifact reads and parses <name>.json.
func (s *fileStore) ReadArtifact(name string, v any) error {
	data, err := s.ReadRaw(name)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal artifact %s: %w", name, err)
	}

	return nil
}

// ReadRaw returns the raw artifact bytes.
func (s *fileStore) ReadRaw(name string) ([]byte, error) {
	// #nosec G304 -- path is constructed from the store root and an internal
	// artifact name, not user input
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}

// RemoveArtifact deletes the artifact file if present.
func (s *fileStore) RemoveArtifact(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact %s: %w", name, err)
	}
	return nil
}
