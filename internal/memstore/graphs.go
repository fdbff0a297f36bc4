// Package memstore provides ephemeral, thread-safe, in-memory
// implementations of the graphstore.Store and runstore.Store interfaces.
//
// Both stores are created fresh per process and hold everything in memory
// behind an RWMutex: graph definitions are written once and read often, and
// run records have a single writer with many concurrent polling readers, so
// reader/writer locking fits both access patterns. For deployments needing
// persistence or sharing across processes, a different implementation
// (backed by a database or KV store) would be needed.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/graphstore"
	"github.com/vk/flowgridgo/internal/schema"
)

// Graphs is the in-memory graph store.
type Graphs struct {
	mu   sync.RWMutex
	defs map[string]*schema.GraphDefinition
}

// NewGraphs creates an empty in-memory graph store.
func NewGraphs() *Graphs {
	return &Graphs{defs: make(map[string]*schema.GraphDefinition)}
}

// Create implements graphstore.Store.
func (s *Graphs) Create(ctx context.Context, def *schema.GraphDefinition) (string, error) {
	graphID := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[graphID] = def
	return graphID, nil
}

// Get implements graphstore.Store.
func (s *Graphs) Get(ctx context.Context, graphID string) (*schema.GraphDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[graphID]
	if !ok {
		return nil, &graphstore.NotFoundError{GraphID: graphID}
	}
	return def, nil
}
