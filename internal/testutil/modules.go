package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/run"
)

// CountingModule registers a "count" capability that increments a counter in
// state and records each invocation, for traversal and looping tests.
type CountingModule struct {
	mu    sync.Mutex
	calls int
	sleep time.Duration
}

// NewCountingModule creates a counting module. A non-zero sleep makes each
// invocation take at least that long, for timing-sensitive tests.
func NewCountingModule(sleep time.Duration) *CountingModule {
	return &CountingModule{sleep: sleep}
}

// Calls reports how many times the "count" capability has run.
func (m *CountingModule) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Register registers the "count" capability.
func (m *CountingModule) Register(r *capability.Registry) {
	r.Register("count", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		if m.sleep > 0 {
			select {
			case <-time.After(m.sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		m.mu.Lock()
		m.calls++
		m.mu.Unlock()

		next := run.CloneState(state)
		counter, _ := next["counter"].(float64)
		next["counter"] = counter + 1
		return next, nil
	})
}

// FailingModule registers a "boom" capability that always returns err.
type FailingModule struct {
	Err error
}

// Register registers the "boom" capability.
func (m *FailingModule) Register(r *capability.Registry) {
	r.Register("boom", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		return nil, m.Err
	})
}

// StaticModule registers capabilities that replace the run state with a
// fixed map, keyed by capability name.
type StaticModule struct {
	Outputs map[string]map[string]any
}

// Register registers one capability per configured output.
func (m *StaticModule) Register(r *capability.Registry) {
	for name, out := range m.Outputs {
		out := out
		r.Register(name, func(ctx context.Context, state map[string]any) (map[string]any, error) {
			next := run.CloneState(state)
			for k, v := range out {
				next[k] = v
			}
			return next, nil
		})
	}
}
