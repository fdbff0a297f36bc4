// Package graphstore defines the interface for storing immutable workflow
// graph definitions keyed by generated id.
//
// The store performs no well-formedness validation beyond what traversal
// discovers lazily: a dangling edge resolves to termination, not an error.
package graphstore

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/schema"
)

// NotFoundError reports a lookup for an unknown graph id. A run against an
// unknown graph never starts.
type NotFoundError struct {
	GraphID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph %q not found", e.GraphID)
}

// Store holds immutable graph definitions.
//
// Definitions must be compiled (conditional edges parsed) before Create;
// the store keeps them verbatim and never mutates them afterwards.
//
// Implementations must be safe for concurrent use: graph creation races with
// lookups from in-flight runs.
type Store interface {
	// Create generates a fresh unique id, stores the definition under it,
	// and returns the id.
	Create(ctx context.Context, def *schema.GraphDefinition) (string, error)

	// Get returns the definition stored under graphID, or a NotFoundError.
	Get(ctx context.Context, graphID string) (*schema.GraphDefinition, error)
}
