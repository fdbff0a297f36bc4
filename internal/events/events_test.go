package events

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/run"
)

func TestMarshalShape(t *testing.T) {
	t.Parallel()

	ev := NodeStart("extract", 1)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// Fields sit flat next to type and timestamp.
	assert.Equal(t, "node_start", decoded["type"])
	assert.Equal(t, "extract", decoded["node"])
	assert.Equal(t, float64(1), decoded["iteration"])

	ts, ok := decoded["timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestNodeCompleteFiltersControlKeys(t *testing.T) {
	t.Parallel()

	state := map[string]any{
		"code":           "def f(): pass",
		"max_iterations": 5,
		"threshold":      7.0,
		"quality_score":  8.5,
		"issues":         []any{},
	}

	ev := NodeComplete("score", state)
	update, ok := ev.Fields["state_update"].(map[string]any)
	require.True(t, ok)

	assert.NotContains(t, update, "code")
	assert.NotContains(t, update, "max_iterations")
	assert.NotContains(t, update, "threshold")
	assert.Equal(t, 8.5, update["quality_score"])
	assert.Contains(t, update, "issues")

	// Filtering copies, it never mutates the run's own state.
	assert.Contains(t, state, "code")
}

func TestComplete(t *testing.T) {
	t.Parallel()

	rec := &run.Record{
		RunID:        "r1",
		State:        map[string]any{"quality_score": 9.0},
		ExecutionLog: []run.LogEntry{{Node: "score", Status: run.LogCompleted}},
	}

	ev := Complete(rec)
	assert.Equal(t, TypeComplete, ev.Type)
	assert.Equal(t, "r1", ev.Fields["run_id"])
	assert.Equal(t, rec.State, ev.Fields["final_state"])

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"execution_log"`)
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TypeConnected, Connected("g1").Type)
	assert.Equal(t, "started", RunStarted("r1").Fields["status"])
	assert.Equal(t, "completed", RunCompleted("r1").Fields["status"])
	assert.Equal(t, TypeTransition, Transition("a", "b").Type)
	assert.Equal(t, "terminated", SystemTerminated("max iterations").Fields["status"])
	assert.Equal(t, TypeNodeError, NodeError("n", assert.AnError).Type)
	assert.Equal(t, assert.AnError.Error(), RunError(assert.AnError).Fields["error"])
}
