// Package codereview provides the builtin code-review capabilities: a small
// pipeline of source-analysis functions that graph nodes can invoke. Each
// capability reads the incoming state bag and returns a replacement bag with
// its results added.
package codereview

import (
	"github.com/vk/flowgridgo/internal/capability"
)

// Module implements capability.Module. It is the entrypoint for the
// code-review capability set, responsible for registering every analysis
// function with the application's registry.
type Module struct{}

// Register registers all of the module's capabilities with the central
// registry.
func (m *Module) Register(r *capability.Registry) {
	r.Register("extract_functions", extractFunctions)
	r.Register("check_complexity", checkComplexity)
	r.Register("detect_issues", detectIssues)
	r.Register("suggest_improvements", suggestImprovements)
	r.Register("check_quality_score", checkQualityScore)
}
