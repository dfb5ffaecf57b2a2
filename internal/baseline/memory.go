package baseline

import (
	"encoding/json"
	"sync"
)

// MemoryStore holds the snapshot in memory, round-tripped through JSON so
// callers never share slices with the store. Used by tests and the
// memory:// DSN.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(s.snapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) Save(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = data
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return nil
}
