// Package engine drives a single run from its start node to termination. It
// is the traversal state machine at the core of the runtime: everything else
// (stores, capability registry, worker pool, event sinks) is injected.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/events"
	"github.com/vk/flowgridgo/internal/graphstore"
	"github.com/vk/flowgridgo/internal/run"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/schema"
	"github.com/vk/flowgridgo/internal/worker"
)

// NodeNotFoundError reports an edge routing to a node name the graph does
// not define. Dangling edges to END or to nothing terminate instead.
type NodeNotFoundError struct {
	Node string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q not found in graph", e.Node)
}

// Engine executes workflow graphs. One Engine serves all runs of a process;
// each run gets its own traversal with exclusive ownership of its record.
type Engine struct {
	graphs graphstore.Store
	runs   runstore.Store
	caps   *capability.Registry
	pool   *worker.Pool
}

// New wires an Engine from its collaborators.
func New(graphs graphstore.Store, runs runstore.Store, caps *capability.Registry, pool *worker.Pool) *Engine {
	return &Engine{graphs: graphs, runs: runs, caps: caps, pool: pool}
}

// Runs exposes the run registry for read-side collaborators (transport,
// background manager).
func (e *Engine) Runs() runstore.Store {
	return e.runs
}

// Graphs exposes the graph store.
func (e *Engine) Graphs() graphstore.Store {
	return e.graphs
}

// Run executes a graph synchronously and returns the final record snapshot.
// A fatal traversal error is recorded on the run and also returned to the
// caller. An unknown graphID fails before any record is created.
func (e *Engine) Run(ctx context.Context, graphID string, initialState map[string]any, sink events.Sink) (*run.Record, error) {
	def, err := e.graphs.Get(ctx, graphID)
	if err != nil {
		return nil, err
	}
	rec := newRecord(graphID, initialState, run.StatusRunning)
	if err := e.runs.Create(ctx, rec); err != nil {
		return nil, err
	}
	return e.drive(ctx, def, rec.RunID, sink)
}

// NewRun allocates a pending record for a detached traversal and returns its
// run id. The caller is expected to hand the id to Drive exactly once.
func (e *Engine) NewRun(ctx context.Context, graphID string, initialState map[string]any) (string, error) {
	if _, err := e.graphs.Get(ctx, graphID); err != nil {
		return "", err
	}
	rec := newRecord(graphID, initialState, run.StatusPending)
	if err := e.runs.Create(ctx, rec); err != nil {
		return "", err
	}
	return rec.RunID, nil
}

// Drive picks up a previously allocated pending run and executes it to
// termination.
func (e *Engine) Drive(ctx context.Context, runID string, sink events.Sink) (*run.Record, error) {
	rec, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	def, err := e.graphs.Get(ctx, rec.GraphID)
	if err != nil {
		return nil, err
	}
	return e.drive(ctx, def, runID, sink)
}

// drive owns the record for the duration of one traversal.
func (e *Engine) drive(ctx context.Context, def *schema.GraphDefinition, runID string, sink events.Sink) (*run.Record, error) {
	logger := ctxlog.FromContext(ctx).With("runID", runID, "graph", def.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := e.runs.Update(ctx, runID, func(rec *run.Record) {
		rec.Status = run.StatusRunning
	}); err != nil {
		return nil, err
	}

	t := &traversal{
		engine: e,
		def:    def,
		runID:  runID,
		sink:   sink,
	}

	rec, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	t.state = rec.State

	logger.Info("▶️ Run started")
	t.emit(ctx, events.RunStarted(runID))

	traversalErr := t.loop(ctx)

	endTime := time.Now().UTC()
	if updateErr := e.runs.Update(ctx, runID, func(rec *run.Record) {
		rec.EndTime = &endTime
		rec.CurrentNode = ""
		if traversalErr != nil {
			rec.Status = run.StatusFailed
			rec.Error = traversalErr.Error()
			return
		}
		rec.Status = run.StatusCompleted
		rec.State = run.CloneState(t.state)
	}); updateErr != nil {
		return nil, updateErr
	}

	if traversalErr != nil {
		logger.Error("Run failed.", "error", traversalErr)
		t.emit(ctx, events.RunError(traversalErr))
	} else {
		logger.Info("🏁 Run completed", "steps", t.iteration)
		t.emit(ctx, events.RunCompleted(runID))
	}

	final, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return final, traversalErr
}

// newRecord builds a fresh run record with a unique id.
func newRecord(graphID string, initialState map[string]any, status run.Status) *run.Record {
	state := run.CloneState(initialState)
	if state == nil {
		state = make(map[string]any)
	}
	return &run.Record{
		RunID:     uuid.NewString(),
		GraphID:   graphID,
		Status:    status,
		State:     state,
		StartTime: time.Now().UTC(),
	}
}
