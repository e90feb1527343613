// Package artifact persists finished job outputs on disk until the
// client downloads them or their retention window lapses.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an artifact has expired or never
// existed.
var ErrNotFound = errors.New("artifact not found")

// Store writes each artifact as a single file under the configured
// directory, keyed by job ID. Keys are ULIDs so no escaping is needed,
// but the store still rejects anything that could leave the directory.
type Store struct {
	dir string
	ttl time.Duration
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir, ttl: ttl}, nil
}

// Put stores data under the job ID with the given filename. The
// filename is kept alongside the data so the download handler can set
// Content-Disposition.
func (s *Store) Put(jobID, filename string, data []byte) error {
	path, err := s.path(jobID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+".name", []byte(filepath.Base(filename)), 0o644); err != nil {
		return fmt.Errorf("write artifact name: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Get returns the artifact bytes and its download filename.
func (s *Store) Get(jobID string) ([]byte, string, error) {
	path, err := s.path(jobID)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}
	name, err := os.ReadFile(path + ".name")
	if err != nil {
		name = []byte(jobID)
	}
	return data, string(name), nil
}

// Delete removes an artifact; a missing artifact is not an error.
func (s *Store) Delete(jobID string) error {
	path, err := s.path(jobID)
	if err != nil {
		return err
	}
	os.Remove(path + ".name")
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Cleanup deletes artifacts older than the TTL and returns how many
// were removed.
func (s *Store) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scan artifact dir: %w", err)
	}
	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil &&
			!strings.HasSuffix(e.Name(), ".name") {
			removed++
		}
	}
	return removed, nil
}

func (s *Store) path(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, "/\\") || strings.Contains(jobID, "..") {
		return "", fmt.Errorf("invalid artifact key %q", jobID)
	}
	return filepath.Join(s.dir, jobID+".bin"), nil
}
