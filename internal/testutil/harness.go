// Package testutil provides shared helpers for engine-level tests: a
// pre-wired engine harness, log capture, and canned capability modules.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/events"
	"github.com/vk/flowgridgo/internal/memstore"
	"github.com/vk/flowgridgo/internal/schema"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness bundles a fully wired engine with its dependencies for tests.
type Harness struct {
	Engine *engine.Engine
	Caps   *capability.Registry
	Ctx    context.Context
	Logs   *SafeBuffer
}

// NewHarness wires an engine against in-memory stores and a small worker
// pool. All resources are released via t.Cleanup.
func NewHarness(t *testing.T, modules ...capability.Module) *Harness {
	t.Helper()

	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	caps := capability.New()
	for _, mod := range modules {
		mod.Register(caps)
	}

	pool := worker.New(ctx, 2)
	// Cleanups run LIFO: cancel the context first so traversals stop
	// submitting, then close the pool.
	t.Cleanup(pool.Close)
	t.Cleanup(cancel)

	return &Harness{
		Engine: engine.New(memstore.NewGraphs(), memstore.NewRuns(), caps, pool),
		Caps:   caps,
		Ctx:    ctx,
		Logs:   logs,
	}
}

// CreateGraph compiles and registers a graph definition, returning its ID.
func (h *Harness) CreateGraph(t *testing.T, def *schema.GraphDefinition) string {
	t.Helper()
	def.Compile(h.Ctx)
	graphID, err := h.Engine.Graphs().Create(h.Ctx, def)
	require.NoError(t, err)
	return graphID
}

// EventRecorder collects streamed events for later assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	fail   bool
}

// Sink returns the recorder's sink function.
func (r *EventRecorder) Sink() events.Sink {
	return func(ev events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.fail {
			return context.Canceled
		}
		r.events = append(r.events, ev)
		return nil
	}
}

// FailNext makes every subsequent delivery return an error.
func (r *EventRecorder) FailNext() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = true
}

// Events returns a snapshot of everything recorded so far.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in delivery order.
func (r *EventRecorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
