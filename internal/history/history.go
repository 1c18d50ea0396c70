// Package history keeps a log of build runs in a BoltDB file.
//
// Each run is stored under a key made of its start time and run ID, so a
// cursor walking the bucket backwards yields the newest runs first. The log
// is informational only; the build cache never reads it.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// bucketName is the BoltDB bucket holding one record per run
const bucketName = "runs"

// Run is the record of one build
type Run struct {
	ID       string        `json:"id"`
	Mode     string        `json:"mode"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome"`
	Compiled int           `json:"compiled"`
	Cached   int           `json:"cached"`
	Failed   int           `json:"failed"`
	// Source identities of the units that failed
	Failures []string `json:"failures,omitempty"`
	Output   string   `json:"output,omitempty"`
}

// key orders runs chronologically
func (r Run) key() []byte {
	return []byte(r.Started.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + r.ID)
}

// Store is the run log
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the run log at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the history database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Append stores a run
func (s *Store) Append(run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(run.key(), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// List returns up to limit runs, newest first. A limit below 1 returns every run.
func (s *Store) List(limit int) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}

			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("corrupt run %s: %w", k, err)
			}

			runs = append(runs, run)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// Clear removes every run
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Count returns the number of stored runs
func (s *Store) Count() (int, error) {
	var count int

	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})

	return count, err
}

// File reads the run log at a path, holding the database only for the
// duration of each call so a concurrent build can still append.
type File string

// List returns up to limit runs, newest first. A missing log has no runs.
func (f File) List(limit int) ([]Run, error) {
	path := string(f)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	defer db.Close()

	s := &Store{db: db}

	return s.List(limit)
}
