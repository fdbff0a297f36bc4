package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/events"
	"github.com/vk/flowgridgo/internal/run"
	"github.com/vk/flowgridgo/internal/schema"
)

// defaultMaxIterations bounds a run whose state carries no max_iterations key.
const defaultMaxIterations = 10

// traversal is the single-active-node walker for one run. It is the sole
// writer of the run's record.
type traversal struct {
	engine *Engine
	def    *schema.GraphDefinition
	runID  string
	sink   events.Sink

	state     map[string]any
	iteration int
}

// loop walks the graph until termination. A nil return leaves the run
// completed; a non-nil return is a fatal error the caller records and
// re-raises.
func (t *traversal) loop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	maxIterations := maxIterationsFromState(t.state)
	current := t.startNode()

	for {
		// Cancellation is checked once per step, like the iteration cap.
		if err := ctx.Err(); err != nil {
			t.appendLog(ctx, run.LogEntry{
				Node:    run.SystemNode,
				Status:  run.LogFailed,
				Details: map[string]any{"error": err.Error()},
			})
			return fmt.Errorf("run cancelled: %w", err)
		}

		if current == "" || current == schema.EndSentinel {
			logger.Debug("Traversal reached the end sentinel.", "iterations", t.iteration)
			return nil
		}

		t.iteration++
		if t.iteration > maxIterations {
			logger.Warn("Iteration cap reached, terminating run.", "max_iterations", maxIterations)
			t.appendLog(ctx, run.LogEntry{
				Node:    run.SystemNode,
				Status:  run.LogTerminated,
				Details: map[string]any{"reason": "max iterations reached"},
			})
			t.emit(ctx, events.SystemTerminated("max iterations reached"))
			return nil
		}

		t.setCurrentNode(ctx, current)
		t.emit(ctx, events.NodeStart(current, t.iteration))

		newState, duration, err := t.executeNode(ctx, current)
		if err != nil {
			t.appendLog(ctx, run.LogEntry{
				Node:    current,
				Status:  run.LogFailed,
				Details: map[string]any{"error": err.Error()},
			})
			t.emit(ctx, events.NodeError(current, err))
			return err
		}

		// The capability returned a full replacement for the state bag.
		t.state = newState
		t.publishState(ctx)

		cfg, _ := t.def.Nodes.Get(current)
		t.appendLog(ctx, run.LogEntry{
			Node:   current,
			Status: run.LogCompleted,
			Details: map[string]any{
				"function":    cfg.Function,
				"duration_ms": float64(duration.Microseconds()) / 1000.0,
			},
		})
		t.emit(ctx, events.NodeComplete(current, t.state))

		next := t.nextNode(ctx, current)
		logger.Debug("Node transition.", "from", current, "to", next)
		t.emit(ctx, events.Transition(current, next))
		current = next
	}
}

// startNode resolves where the traversal begins. An explicit start_node in
// the definition wins; otherwise the first declared node that is not the
// target of any unconditional edge; otherwise the first declared node. An
// empty node set yields "" and the run terminates immediately with an empty
// log.
func (t *traversal) startNode() string {
	if t.def.StartNode != "" {
		return t.def.StartNode
	}

	targets := make(map[string]struct{}, len(t.def.Edges))
	for _, target := range t.def.Edges {
		targets[target] = struct{}{}
	}
	names := t.def.Nodes.Names()
	for _, name := range names {
		if _, isTarget := targets[name]; !isTarget {
			return name
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

// executeNode resolves and invokes the capability bound to a node. The
// invocation runs on the engine's worker pool.
func (t *traversal) executeNode(ctx context.Context, name string) (map[string]any, time.Duration, error) {
	cfg, ok := t.def.Nodes.Get(name)
	if !ok {
		return nil, 0, &NodeNotFoundError{Node: name}
	}

	fn, err := t.engine.caps.Get(cfg.Function)
	if err != nil {
		return nil, 0, err
	}

	newState, duration, err := t.engine.pool.Invoke(ctx, fn, t.state)
	if err != nil {
		return nil, 0, err
	}
	if newState == nil {
		newState = make(map[string]any)
	}
	return newState, duration, nil
}

// nextNode picks the target after a node completes. A conditional edge for
// the source is consulted before its unconditional edge; with neither, the
// traversal ends.
func (t *traversal) nextNode(ctx context.Context, current string) string {
	if edge, ok := t.def.ConditionalEdges[current]; ok {
		return edge.Evaluate(ctx, t.state)
	}
	if target, ok := t.def.Edges[current]; ok {
		return target
	}
	return schema.EndSentinel
}

// appendLog stamps and appends an execution-log entry on the record.
func (t *traversal) appendLog(ctx context.Context, entry run.LogEntry) {
	entry.Timestamp = time.Now().UTC()
	if err := t.engine.runs.Update(ctx, t.runID, func(rec *run.Record) {
		rec.ExecutionLog = append(rec.ExecutionLog, entry)
	}); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to append execution log entry.", "error", err)
	}
}

// setCurrentNode publishes traversal progress for concurrent pollers.
func (t *traversal) setCurrentNode(ctx context.Context, name string) {
	if err := t.engine.runs.Update(ctx, t.runID, func(rec *run.Record) {
		rec.CurrentNode = name
	}); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to update current node.", "error", err)
	}
}

// publishState mirrors the live state onto the record after each step.
func (t *traversal) publishState(ctx context.Context) {
	snapshot := run.CloneState(t.state)
	if err := t.engine.runs.Update(ctx, t.runID, func(rec *run.Record) {
		rec.State = snapshot
	}); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to publish state snapshot.", "error", err)
	}
}

// emit delivers an event to the sink, if any. The first sink failure stops
// further delivery for this run; record state already committed is not
// affected.
func (t *traversal) emit(ctx context.Context, ev events.Event) {
	if t.sink == nil {
		return
	}
	if err := t.sink(ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Event sink failed, stopping stream delivery.", "error", err)
		t.sink = nil
	}
}

// maxIterationsFromState reads the per-run iteration cap from the state bag,
// coercing whatever numeric shape the payload delivered.
func maxIterationsFromState(state map[string]any) int {
	raw, ok := state["max_iterations"]
	if !ok {
		return defaultMaxIterations
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultMaxIterations
}
