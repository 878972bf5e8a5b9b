package store

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/fill-ledger/internal/model"
)

// MemoryStore implements FillStore in memory. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	entries []entry
	batches []string
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, log model.FillLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	for _, e := range ordered(log) {
		// Store copies to avoid external mutation.
		if e.rec != nil {
			r := *e.rec
			r.Fallbacks = append([]string(nil), r.Fallbacks...)
			r.RawNumeric = maps.Clone(r.RawNumeric)
			s.entries = append(s.entries, entry{rec: &r})
			continue
		}
		d := *e.defect
		s.entries = append(s.entries, entry{defect: &d})
	}
	id := uuid.NewString()
	s.batches = append(s.batches, id)
	return id, nil
}

func (s *MemoryStore) Load(_ context.Context) (model.FillLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.FillLog{}, ErrClosed
	}
	return assemble(s.entries), nil
}

// Batches returns the ids of appended batches, oldest first.
func (s *MemoryStore) Batches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.batches...)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
