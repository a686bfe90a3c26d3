// Package store - in-memory Store implementation
package store

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore implements Store in a process-local map. Suitable for tests
// and for single-shot CLI invocations that never need crash recovery.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[common.Address]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[common.Address]*Record)}
}

func (m *MemoryStore) Load(sender common.Address) (*Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[sender]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(r), true, nil
}

func (m *MemoryStore) Save(record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.From] = copyRecord(record)
	return nil
}

func (m *MemoryStore) Clear(sender common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, sender)
	return nil
}

var _ Store = (*MemoryStore)(nil)
