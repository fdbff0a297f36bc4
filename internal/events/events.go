// Package events defines the live progress events a traversal emits and the
// sink contract used to deliver them to a remote observer.
package events

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
	"github.com/vk/flowgridgo/internal/run"
)

// Type discriminates the stream message shapes.
type Type string

const (
	TypeConnected    Type = "connected"
	TypeStatus       Type = "status"
	TypeNodeStart    Type = "node_start"
	TypeNodeComplete Type = "node_complete"
	TypeTransition   Type = "transition"
	TypeSystem       Type = "system"
	TypeNodeError    Type = "node_error"
	TypeError        Type = "error"
	TypeComplete     Type = "complete"
)

// Event is one structured stream message: {type, ...fields, timestamp}.
type Event struct {
	Type      Type
	Timestamp time.Time
	Fields    map[string]any
}

// MarshalJSON flattens Fields next to type and timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	t, err := json.Marshal(string(e.Type))
	if err != nil {
		return nil, err
	}
	buf.Write(t)
	for key, value := range e.Fields {
		buf.WriteByte(',')
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteString(`,"timestamp":`)
	ts, err := json.Marshal(e.Timestamp)
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Sink receives events one at a time, synchronously, on the traversal's own
// execution path. A sink error terminates further delivery for that run but
// must not disturb run state already committed.
type Sink func(ev Event) error

// New builds an event stamped with the current wall clock.
func New(t Type, fields map[string]any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Fields: fields}
}

// Connected acknowledges a freshly established stream.
func Connected(graphID string) Event {
	return New(TypeConnected, map[string]any{
		"message":  "stream connected",
		"graph_id": graphID,
	})
}

// RunStarted announces a traversal beginning.
func RunStarted(runID string) Event {
	return New(TypeStatus, map[string]any{"status": "started", "run_id": runID})
}

// RunCompleted announces a traversal finishing cleanly.
func RunCompleted(runID string) Event {
	return New(TypeStatus, map[string]any{"status": "completed", "run_id": runID})
}

// NodeStart announces a node about to execute.
func NodeStart(node string, iteration int) Event {
	return New(TypeNodeStart, map[string]any{"node": node, "iteration": iteration})
}

// NodeComplete carries the post-execution state snapshot, with
// execution-control keys filtered out.
func NodeComplete(node string, state map[string]any) Event {
	return New(TypeNodeComplete, map[string]any{
		"node":         node,
		"state_update": FilterState(state),
	})
}

// Transition announces the routing decision after a node completes.
func Transition(from, to string) Event {
	return New(TypeTransition, map[string]any{"from": from, "to": to})
}

// SystemTerminated announces a runtime-initiated soft termination, such as
// the iteration cap.
func SystemTerminated(reason string) Event {
	return New(TypeSystem, map[string]any{"status": "terminated", "reason": reason})
}

// NodeError announces a node failing.
func NodeError(node string, err error) Event {
	return New(TypeNodeError, map[string]any{"node": node, "error": err.Error()})
}

// RunError announces a traversal failing.
func RunError(err error) Event {
	return New(TypeError, map[string]any{"error": err.Error()})
}

// Complete is the terminal stream message with the full run outcome.
func Complete(rec *run.Record) Event {
	return New(TypeComplete, map[string]any{
		"run_id":        rec.RunID,
		"final_state":   rec.State,
		"execution_log": rec.ExecutionLog,
	})
}

// controlKeys drive execution rather than describe results, so progress
// snapshots leave them out.
var controlKeys = map[string]struct{}{
	"code":           {},
	"max_iterations": {},
	"threshold":      {},
}

// FilterState returns a copy of state without execution-control keys.
func FilterState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if _, control := controlKeys[k]; control {
			continue
		}
		out[k] = v
	}
	return out
}
