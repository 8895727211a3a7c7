package replayguard

import (
	"context"
	"sync"
	"time"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments. It
// does not survive restarts; production deployments use the SQLite or Redis
// stores.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]contracts.ReplayRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]contracts.ReplayRecord)}
}

func (s *MemoryStore) Get(_ context.Context, eventHash string) (contracts.ReplayRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[eventHash]
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, rec contracts.ReplayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.EventHash] = rec
	return nil
}

func (s *MemoryStore) EvictBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for k, rec := range s.records {
		if rec.FirstSeen.Before(cutoff) {
			delete(s.records, k)
			evicted++
		}
	}
	return evicted, nil
}

func (s *MemoryStore) Load(_ context.Context) ([]contracts.ReplayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.ReplayRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}
