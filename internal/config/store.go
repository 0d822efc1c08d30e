package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// recordVersion is bumped whenever the on-disk layout changes incompatibly.
const recordVersion = 1

// Store persists the single configuration record.
type Store interface {
	// Load returns the stored record, or nil when nothing has been stored yet.
	Load() (*Record, error)
	// Save replaces the stored record.
	Save(rec *Record) error
}

// document is the on-disk envelope around a Record.
type document struct {
	Version int    `yaml:"version"`
	Record  Record `yaml:"record"`
}

// FileStore keeps the record as a YAML document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing the store
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record from disk. A missing file is not an error.
func (s *FileStore) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config record: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config record: %w", err)
	}

	if doc.Version != recordVersion {
		return nil, fmt.Errorf("unsupported config record version: %d (expected %d)", doc.Version, recordVersion)
	}

	return &doc.Record, nil
}

// Save writes the record atomically (write to a temporary file, then rename).
func (s *FileStore) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&document{Version: recordVersion, Record: *rec})
	if err != nil {
		return fmt.Errorf("failed to marshal config record: %w", err)
	}

	header := []byte("# edgent provisioning record\n# Contains Wi-Fi and cloud credentials. Keep private.\n\n")
	data = append(header, data...)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config record: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config record: %w", err)
	}

	return nil
}

// Remove deletes the stored record. Removing a missing record is not an error.
func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove config record: %w", err)
	}
	return nil
}

// MemoryStore keeps the record in memory. It is used by tests and by the
// simulator when no store path is configured.
type MemoryStore struct {
	mu    sync.Mutex
	rec   *Record
	saves int
	// Err, when set, is returned by Save.
	Err error
}

// NewMemoryStore returns a store preloaded with rec (which may be nil).
func NewMemoryStore(rec *Record) *MemoryStore {
	s := &MemoryStore{}
	if rec != nil {
		cp := *rec
		s.rec = &cp
	}
	return s
}

// Load returns a copy of the stored record
func (s *MemoryStore) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

// Save stores a copy of rec
func (s *MemoryStore) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *rec
	s.rec = &cp
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
