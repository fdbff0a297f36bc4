// Package runstore defines the run registry interface: per-run mutable
// status, state, and execution log, shared between the synchronous caller
// path and the background-task path.
//
// # Ownership model
//
// Exactly one traversal owns a run's record and is its only writer. Pollers
// may read at any point during the running phase; they always receive
// snapshots, never the live record. This is the single-writer-per-key /
// many-readers contract of the engine's concurrency model.
package runstore

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/run"
)

// NotFoundError reports a lookup for an unknown run id.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// Store is the run registry.
type Store interface {
	// Create registers a new record under its RunID. The record's RunID must
	// be unique; Create on an existing id is a programmer error and fails.
	Create(ctx context.Context, rec *run.Record) error

	// Get returns a snapshot of the record, or a NotFoundError. The snapshot
	// is detached: mutating it does not affect the stored record.
	Get(ctx context.Context, runID string) (*run.Record, error)

	// Update applies mutate to the live record under the store's lock. Only
	// the traversal that owns the run may call Update; terminal records
	// must not be mutated further.
	Update(ctx context.Context, runID string, mutate func(rec *run.Record)) error
}
