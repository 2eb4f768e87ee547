// Package memstore keeps run records in process memory. Records are stored
// encoded, so callers can never mutate a saved record through a shared map.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leofalp/railgraph/providers/store"
)

type entry struct {
	data      []byte
	startedAt time.Time
	seq       int
}

// Store is an in-memory store.RunStore.
type Store struct {
	mu   sync.RWMutex
	runs map[string]entry
	seq  int
}

var _ store.RunStore = (*Store)(nil)

func New() *Store {
	return &Store{runs: make(map[string]entry)}
}

func (s *Store) SaveRun(_ context.Context, record store.RunRecord) error {
	data, err := store.Encode(record)
	if err != nil {
		return fmt.Errorf("memstore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[record.ID]; exists {
		return fmt.Errorf("memstore: %w: %s", store.ErrAlreadyExists, record.ID)
	}
	s.seq++
	s.runs[record.ID] = entry{data: data, startedAt: record.StartedAt, seq: s.seq}
	return nil
}

func (s *Store) LoadRun(_ context.Context, runID string) (store.RunRecord, error) {
	s.mu.RLock()
	saved, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return store.RunRecord{}, fmt.Errorf("memstore: %w: %s", store.ErrNotFound, runID)
	}
	return store.Decode(saved.data)
}

func (s *Store) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		left, right := s.runs[ids[i]], s.runs[ids[j]]
		if !left.startedAt.Equal(right.startedAt) {
			return left.startedAt.After(right.startedAt)
		}
		return left.seq > right.seq
	})
	return ids, nil
}
