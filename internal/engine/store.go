package engine

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRecordStore is an in-memory RecordStore for tests and for
// running without a data directory.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRecordStore creates an empty in-memory store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[string]*Record)}
}

// Save upserts one record.
func (s *InMemoryRecordStore) Save(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record.clone()
	return nil
}

// Load returns all persisted records ordered by creation time.
func (s *InMemoryRecordStore) Load(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
