// Package background runs detached traversals and answers completion polls
// for them.
//
// The manager's per-task signal is tracked separately from the run record's
// status: the two views converge once the traversal goroutine finishes, but
// a poller reading both mid-flight may see them disagree. That window is
// expected, not corruption.
package background

import (
	"context"
	"sync"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/engine"
)

// State is the scheduling unit's own view of a task.
type State string

const (
	StateNotFound  State = "not_found"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StatusReport is the answer to a completion poll.
type StatusReport struct {
	State State
	Error string
}

// handle tracks one detached traversal. err is written before done closes
// and read only after done is observed closed.
type handle struct {
	done chan struct{}
	err  error
}

// Manager spawns detached traversals and tracks their completion.
type Manager struct {
	engine *engine.Engine

	// baseCtx is the process-lifecycle context; detached runs must outlive
	// the request that started them.
	baseCtx context.Context

	mu    sync.RWMutex
	tasks map[string]*handle
	wg    sync.WaitGroup
}

// NewManager creates a Manager whose detached runs live on baseCtx.
func NewManager(baseCtx context.Context, eng *engine.Engine) *Manager {
	return &Manager{
		engine:  eng,
		baseCtx: baseCtx,
		tasks:   make(map[string]*handle),
	}
}

// Start allocates a pending run, schedules its traversal to run
// independently of the caller, and returns the run id immediately. An
// unknown graph id fails here, before anything is scheduled.
func (m *Manager) Start(ctx context.Context, graphID string, initialState map[string]any) (string, error) {
	runID, err := m.engine.NewRun(ctx, graphID, initialState)
	if err != nil {
		return "", err
	}

	h := &handle{done: make(chan struct{})}
	m.mu.Lock()
	m.tasks[runID] = h
	m.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Background run scheduled", "runID", runID, "graphID", graphID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, driveErr := m.engine.Drive(m.baseCtx, runID, nil)
		h.err = driveErr
		close(h.done)
	}()

	return runID, nil
}

// Status reports the task-level completion signal for a run id. It reflects
// the scheduling unit only; callers wanting the full picture read the run
// record as well.
func (m *Manager) Status(runID string) StatusReport {
	m.mu.RLock()
	h, ok := m.tasks[runID]
	m.mu.RUnlock()
	if !ok {
		return StatusReport{State: StateNotFound}
	}

	select {
	case <-h.done:
		if h.err != nil {
			return StatusReport{State: StateFailed, Error: h.err.Error()}
		}
		return StatusReport{State: StateCompleted}
	default:
		return StatusReport{State: StateRunning}
	}
}

// Done exposes the completion channel for a run id, mainly for tests and
// shutdown sequencing.
func (m *Manager) Done(runID string) (<-chan struct{}, bool) {
	m.mu.RLock()
	h, ok := m.tasks[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return h.done, true
}

// Shutdown waits for all in-flight background runs to finish or for ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
