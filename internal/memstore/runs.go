package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/flowgridgo/internal/run"
	"github.com/vk/flowgridgo/internal/runstore"
)

// Runs is the in-memory run registry. Reads return detached snapshots so
// polling clients never observe a record mid-mutation.
type Runs struct {
	mu      sync.RWMutex
	records map[string]*run.Record
}

// NewRuns creates an empty in-memory run registry.
func NewRuns() *Runs {
	return &Runs{records: make(map[string]*run.Record)}
}

// Create implements runstore.Store.
func (s *Runs) Create(ctx context.Context, rec *run.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.RunID]; exists {
		return fmt.Errorf("run %q already registered", rec.RunID)
	}
	s.records[rec.RunID] = rec.Clone()
	return nil
}

// Get implements runstore.Store.
func (s *Runs) Get(ctx context.Context, runID string) (*run.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return nil, &runstore.NotFoundError{RunID: runID}
	}
	return rec.Clone(), nil
}

// Update implements runstore.Store.
func (s *Runs) Update(ctx context.Context, runID string, mutate func(rec *run.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[runID]
	if !ok {
		return &runstore.NotFoundError{RunID: runID}
	}
	mutate(rec)
	return nil
}
