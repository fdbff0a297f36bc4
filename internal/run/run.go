// Package run defines the mutable record of a single graph execution: its
// status, current position, state bag, and append-only execution log.
package run

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusPending marks a run created but not yet picked up by a traversal
	// (background runs start here).
	StatusPending Status = "pending"
	// StatusRunning marks a run owned by an active traversal.
	StatusRunning Status = "running"
	// StatusCompleted is terminal. Iteration-capped runs complete, they do
	// not fail.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SystemNode is the log-entry node name for runtime-generated entries, such
// as the iteration-cap notice.
const SystemNode = "SYSTEM"

// Log entry statuses.
const (
	LogCompleted  = "completed"
	LogFailed     = "failed"
	LogTerminated = "terminated"
)

// LogEntry is one step outcome in a run's execution log. Entries are
// append-only and their timestamps are monotonically non-decreasing.
type LogEntry struct {
	Node      string         `json:"node"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Record is the authoritative view of one run. Exactly one traversal mutates
// a record; everyone else observes snapshots.
type Record struct {
	RunID        string         `json:"run_id"`
	GraphID      string         `json:"graph_id"`
	Status       Status         `json:"status"`
	CurrentNode  string         `json:"current_node,omitempty"`
	State        map[string]any `json:"state"`
	ExecutionLog []LogEntry     `json:"execution_log"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Clone returns a snapshot safe to hand to concurrent readers. The state map
// and log slice are copied one level deep; nested state values are only ever
// replaced wholesale by the owning traversal, never mutated in place.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.State = CloneState(r.State)
	out.ExecutionLog = make([]LogEntry, len(r.ExecutionLog))
	copy(out.ExecutionLog, r.ExecutionLog)
	if r.EndTime != nil {
		end := *r.EndTime
		out.EndTime = &end
	}
	return &out
}

// CloneState copies the top level of a state bag.
func CloneState(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
