// Package metadata persists the per-directory sync records under the
// reserved .walsync subdirectory of a root directory.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// ReservedDir is the subdirectory that holds sync metadata. It is
// excluded from fingerprinting and archiving.
const ReservedDir = ".walsync"

const (
	metadataFile = "metadata.json"
	lockFile     = "metadata.json.lock"
)

// Record tracks the last successful push of one directory.
type Record struct {
	Path          string    `json:"-"`
	BlobID        string    `json:"blob_id"`
	Hash          string    `json:"hash"`
	PushedAt      time.Time `json:"pushed_at"`
	DirectoryName string    `json:"directory_name"`
}

// Store is the single source of truth for tracked directories. The
// backing file is loaded fully, mutated in memory and replaced
// atomically; an advisory flock guards the read-modify-write cycle
// against concurrent invocations.
type Store struct {
	dir  string
	path string
	lock *flock.Flock
}

// Open binds a store to <root>/.walsync/metadata.json, creating the
// reserved directory if needed.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, ReservedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, metadataFile),
		lock: flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

// Get returns the record for a normalized absolute path.
func (s *Store) Get(path string) (Record, bool, error) {
	if err := s.lock.RLock(); err != nil {
		return Record{}, false, fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	records, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[path]
	return rec, ok, nil
}

// All returns every record sorted lexicographically by path.
func (s *Store) All() ([]Record, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Upsert creates or replaces the record keyed by rec.Path. The whole
// load-modify-replace cycle runs under an exclusive lock.
func (s *Store) Upsert(rec Record) error {
	if rec.Path == "" {
		return errors.New("metadata: record path is empty")
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	records, err := s.load()
	if err != nil {
		return err
	}
	records[rec.Path] = rec
	return s.replace(records)
}

func (s *Store) load() (map[string]Record, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var records map[string]Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	for path, rec := range records {
		rec.Path = path
		records[path] = rec
	}
	return records, nil
}

// replace writes the full record set to a temp file in the same
// directory and renames it over the old one, so readers never observe
// a half-written file.
func (s *Store) replace(records map[string]Record) (retErr error) {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.dir, metadataFile+".*")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
