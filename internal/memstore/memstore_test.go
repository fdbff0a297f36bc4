package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/graphstore"
	"github.com/vk/flowgridgo/internal/run"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/schema"
)

func TestGraphsCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewGraphs()

	def := &schema.GraphDefinition{Name: "code_review"}
	graphID, err := store.Create(ctx, def)
	require.NoError(t, err)
	require.NotEmpty(t, graphID)

	got, err := store.Get(ctx, graphID)
	require.NoError(t, err)
	assert.Same(t, def, got)

	// Each registration gets a distinct id, even for an identical definition.
	otherID, err := store.Create(ctx, def)
	require.NoError(t, err)
	assert.NotEqual(t, graphID, otherID)
}

func TestGraphsGetUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewGraphs().Get(context.Background(), "missing")
	var notFound *graphstore.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.GraphID)
}

func TestRunsSnapshotIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRuns()

	rec := &run.Record{
		RunID:     "r1",
		GraphID:   "g1",
		Status:    run.StatusRunning,
		State:     map[string]any{"counter": 1.0},
		StartTime: time.Now(),
	}
	require.NoError(t, store.Create(ctx, rec))

	// Mutating the caller's record after Create must not leak into the store.
	rec.State["counter"] = 99.0
	snap, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.State["counter"])

	// Mutating a returned snapshot must not leak back either.
	snap.State["counter"] = 42.0
	again, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.State["counter"])
}

func TestRunsUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRuns()

	require.NoError(t, store.Create(ctx, &run.Record{RunID: "r1", Status: run.StatusPending}))

	err := store.Update(ctx, "r1", func(rec *run.Record) {
		rec.Status = run.StatusRunning
		rec.CurrentNode = "extract"
	})
	require.NoError(t, err)

	snap, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, snap.Status)
	assert.Equal(t, "extract", snap.CurrentNode)
}

func TestRunsErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRuns()

	require.NoError(t, store.Create(ctx, &run.Record{RunID: "r1"}))
	assert.Error(t, store.Create(ctx, &run.Record{RunID: "r1"}))

	var notFound *runstore.NotFoundError
	_, err := store.Get(ctx, "nope")
	require.ErrorAs(t, err, &notFound)

	err = store.Update(ctx, "nope", func(rec *run.Record) {})
	require.ErrorAs(t, err, &notFound)
}

func TestRunsConcurrentPollers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRuns()

	require.NoError(t, store.Create(ctx, &run.Record{
		RunID: "r1",
		State: map[string]any{"counter": 0.0},
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = store.Update(ctx, "r1", func(rec *run.Record) {
				rec.State["counter"] = rec.State["counter"].(float64) + 1
				rec.ExecutionLog = append(rec.ExecutionLog, run.LogEntry{Node: "n", Status: run.LogCompleted})
			})
		}
	}()

	for reader := 0; reader < 4; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				snap, err := store.Get(ctx, "r1")
				if !assert.NoError(t, err) {
					return
				}
				// A snapshot is internally consistent at some point in time.
				assert.Equal(t, float64(len(snap.ExecutionLog)), snap.State["counter"])
			}
		}()
	}
	wg.Wait()
}
