// Package cache provides the persisted build cache.
//
// The cache maps a source identity (the source path) to the fingerprint and
// object path of its last successful compile. It is:
//
//  1. Loaded once per run; a missing or corrupt file yields an empty cache
//  2. Updated in memory, one whole entry per successfully compiled unit
//  3. Flushed once per batch as a single atomic file replacement
//  4. Stored as indented JSON so it can be inspected by hand
//
// Entries of failed compiles are never touched, so the fingerprint always
// reflects the content of the last successful compile.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is the in-memory view of the persisted cache file
type Store struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

// Load reads the cache file at path. It never fails: a missing file yields
// an empty store, and an unreadable or malformed file is logged and
// treated as empty.
func Load(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    path,
		now:     time.Now,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Build cache unreadable, starting empty", slog.String("path", path), slog.String("error", err.Error()))
		}

		return s
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("Build cache corrupt, starting empty", slog.String("path", path), slog.String("error", err.Error()))
		return s
	}

	for id, e := range entries {
		s.entries[id] = e
	}

	return s
}

// Path returns the location of the cache file
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the entry for a source identity
func (s *Store) Lookup(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

// Record upserts the entry for a source identity in memory
func (s *Store) Record(id, fingerprint, output string) {
	e := Entry{
		Fingerprint: fingerprint,
		Output:      output,
		Timestamp:   s.now(),
	}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Flush writes the whole mapping to disk, replacing the previous file atomically
func (s *Store) Flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to encode build cache: %w", err)
	}

	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write build cache: %w", err)
	}

	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	name := tmp.Name()
	defer os.Remove(name) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(name, path)
}

// Clean removes the build output directory and the cache file together.
// The cache is only ever cleared as a whole.
func Clean(buildDir, cachePath string) error {
	if err := os.RemoveAll(buildDir); err != nil {
		return fmt.Errorf("failed to remove build directory: %w", err)
	}

	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove build cache: %w", err)
	}

	return nil
}
