// Package condition implements the conditional-edge expression evaluator.
//
// A condition such as "quality_score >= threshold" references state keys by
// bare name. Each expression is parsed exactly once, at graph-creation time,
// into an HCL expression tree. Evaluation binds state keys as typed cty
// values, so a key only ever matches a whole identifier and no
// general-purpose code execution is involved.
package condition

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Condition is a single parsed conditional-edge expression.
type Condition struct {
	src  string
	expr hclsyntax.Expression
}

// Parse parses a condition expression into its evaluable form.
func Parse(src string) (*Condition, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing condition %q: %s", src, diags.Error())
	}
	return &Condition{src: src, expr: expr}, nil
}

// String returns the original expression source.
func (c *Condition) String() string {
	return c.src
}

// References returns the sorted state keys the expression reads. Useful for
// diagnostics; evaluation itself binds whatever the state bag holds.
func (c *Condition) References() []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, traversal := range c.expr.Variables() {
		name := traversal.RootName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		refs = append(refs, name)
	}
	return refs
}

// Eval evaluates the condition against the given state bag. Any evaluation
// failure (unresolved identifier, type mismatch, division by zero) is logged
// as a non-fatal diagnostic and treated as false.
func (c *Condition) Eval(ctx context.Context, state map[string]any) bool {
	logger := ctxlog.FromContext(ctx)

	vars := make(map[string]cty.Value, len(state))
	for key, value := range state {
		val, err := ToCty(value)
		if err != nil {
			logger.Debug("State value not representable in condition scope, skipping.", "key", key, "error", err)
			continue
		}
		vars[key] = val
	}

	result, diags := c.expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		logger.Warn("Condition evaluation failed, routing to false branch.", "condition", c.src, "error", diags.Error())
		return false
	}

	boolVal, err := convert.Convert(result, cty.Bool)
	if err != nil || !boolVal.IsKnown() || boolVal.IsNull() {
		logger.Warn("Condition did not produce a boolean, routing to false branch.", "condition", c.src)
		return false
	}
	return boolVal.True()
}
