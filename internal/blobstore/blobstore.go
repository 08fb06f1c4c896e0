// Package blobstore is the content-addressed image store. Blobs live under a
// two-level shard layout derived from the identity hash so no directory grows
// unbounded.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"stockpix/internal/identity"
)

// Store writes and reads image blobs under a fixed root directory.
type Store struct {
	root      string
	extension string
}

// New returns a store rooted at dir. The extension is applied to every blob
// path and carries no dot.
func New(dir, extension string) *Store {
	return &Store{root: dir, extension: extension}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the absolute path a blob for id lives at, whether or not it
// exists yet.
func (s *Store) Path(id identity.ID) string {
	return filepath.Join(s.root, id.ShardPath(s.extension))
}

// RelativePath returns the shard-relative path recorded in the registry.
func (s *Store) RelativePath(id identity.ID) string {
	return id.ShardPath(s.extension)
}

// Exists reports whether a blob for id is already on disk.
func (s *Store) Exists(id identity.ID) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// Write persists data for id, creating shard directories as needed. Writes go
// through a temp file and rename so readers never observe a partial blob.
func (s *Store) Write(id identity.ID, data []byte) (string, error) {
	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create shard dir for %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+string(id)[:8]+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob for %s: %w", id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close blob for %s: %w", id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish blob for %s: %w", id, err)
	}
	return s.RelativePath(id), nil
}

// Read returns the blob bytes for id.
func (s *Store) Read(id identity.ID) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("read blob for %s: %w", id, err)
	}
	return data, nil
}
