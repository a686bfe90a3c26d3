// Package store - file-based Store implementation
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// FileStore implements Store as a single JSON file keyed by sender address,
// written with a write-to-temp-then-rename sequence so a crash mid-write
// never corrupts the file: the rename is the only operation that can make a
// new version visible, and it is atomic on every OS this runs on.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	records  map[common.Address]*Record
}

// NewFileStore opens (or creates) the JSON file at filePath and loads any
// Records already persisted there.
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{
		filePath: filePath,
		records:  make(map[common.Address]*Record),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load store from file: %w", err)
	}

	return s, nil
}

func (s *FileStore) Load(sender common.Address) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[sender]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(r), true, nil
}

func (s *FileStore) Save(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.From] = copyRecord(record)
	return s.persist()
}

func (s *FileStore) Clear(sender common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, sender)
	return s.persist()
}

func (s *FileStore) load() error {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records map[common.Address]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.records = records
	return nil
}

// persist writes the whole map out atomically. Must hold the write lock.
func (s *FileStore) persist() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

func copyRecord(r *Record) *Record {
	if r == nil {
		return nil
	}

	cp := *r
	if r.To != nil {
		to := *r.To
		cp.To = &to
	}
	if r.CallData != nil {
		cp.CallData = append([]byte(nil), r.CallData...)
	}
	cp.Attempts = append([]Attempt(nil), r.Attempts...)
	return &cp
}

var _ Store = (*FileStore)(nil)
