// Package schema defines the wire and storage shapes of a workflow graph:
// nodes bound to capability functions, unconditional edges, and conditional
// edges with pre-parsed routing expressions.
package schema

import (
	"context"

	"github.com/vk/flowgridgo/internal/condition"
	"github.com/vk/flowgridgo/internal/ctxlog"
)

// EndSentinel is the node name that terminates a traversal. It never resolves
// to a NodeConfig.
const EndSentinel = "END"

// NodeConfig binds a named node to a registered capability function.
type NodeConfig struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params,omitempty"`
}

// ConditionalEdge routes from its source node to one of two targets based on
// a condition evaluated against the current state.
//
// The wire keys "true" and "false" match the transport payload.
type ConditionalEdge struct {
	Condition   string `json:"condition"`
	TrueTarget  string `json:"true"`
	FalseTarget string `json:"false"`

	// compiled is the parsed expression, populated by Compile. A nil value
	// (never compiled, or the source failed to parse) always routes false.
	compiled *condition.Condition
}

// Evaluate picks the edge's target for the given state. Evaluation failures
// and uncompiled conditions route to the false target.
func (e *ConditionalEdge) Evaluate(ctx context.Context, state map[string]any) string {
	if e.compiled == nil {
		ctxlog.FromContext(ctx).Warn("Conditional edge has no compiled condition, routing to false branch.", "condition", e.Condition)
		return e.FalseTarget
	}
	if e.compiled.Eval(ctx, state) {
		return e.TrueTarget
	}
	return e.FalseTarget
}

// GraphDefinition is an immutable workflow graph. Nodes preserve declaration
// order because start-node inference depends on it.
type GraphDefinition struct {
	Name             string                      `json:"name"`
	StartNode        string                      `json:"start_node,omitempty"`
	Nodes            NodeSet                     `json:"nodes"`
	Edges            map[string]string           `json:"edges"`
	ConditionalEdges map[string]*ConditionalEdge `json:"conditional_edges,omitempty"`
}

// Compile parses every conditional-edge expression once, before the
// definition is stored. A malformed condition is a non-fatal diagnostic: the
// edge simply routes to its false target from then on.
func (g *GraphDefinition) Compile(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for source, edge := range g.ConditionalEdges {
		compiled, err := condition.Parse(edge.Condition)
		if err != nil {
			logger.Warn("Condition failed to parse, edge will always route false.", "graph", g.Name, "source", source, "error", err)
			continue
		}
		edge.compiled = compiled
	}
}
