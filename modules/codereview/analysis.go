package codereview

import (
	"context"
	"regexp"
	"strings"

	"github.com/vk/flowgridgo/internal/run"
)

// maxLineLength is the style limit detectIssues enforces.
const maxLineLength = 100

// funcDefRe matches a function definition header and captures its name and
// argument list. Both `def name(...)` and `func name(...)` forms are
// recognized so the pipeline can review either style of source.
var funcDefRe = regexp.MustCompile(`(?m)^\s*(?:def|func)\s+(\w+)\s*\(([^)]*)\)`)

// extractFunctions scans state["code"] for function definitions and records
// them under "functions" with a "function_count".
func extractFunctions(ctx context.Context, state map[string]any) (map[string]any, error) {
	out := run.CloneState(state)
	code := stringValue(state, "code")

	var functions []any
	for _, match := range funcDefRe.FindAllStringSubmatchIndex(code, -1) {
		name := code[match[2]:match[3]]
		rawArgs := code[match[4]:match[5]]
		var args []any
		for _, arg := range strings.Split(rawArgs, ",") {
			arg = strings.TrimSpace(arg)
			if arg != "" {
				args = append(args, strings.Fields(arg)[0])
			}
		}
		functions = append(functions, map[string]any{
			"name":       name,
			"line_start": strings.Count(code[:match[0]], "\n") + 1,
			"args":       args,
		})
	}

	out["functions"] = functions
	out["function_count"] = len(functions)
	return out, nil
}

// complexityTokens are the branching constructs counted by checkComplexity.
var complexityTokens = []string{"if ", "elif ", "else if ", "for ", "while ", "switch ", "try:"}

// checkComplexity scores the code's branching density and records one score
// per extracted function plus the average.
func checkComplexity(ctx context.Context, state map[string]any) (map[string]any, error) {
	out := run.CloneState(state)
	code := stringValue(state, "code")
	functions, _ := state["functions"].([]any)

	branchCount := 0
	for _, token := range complexityTokens {
		branchCount += strings.Count(code, token)
	}

	var scores []any
	total := 0.0
	for _, fn := range functions {
		fnMap, _ := fn.(map[string]any)
		complexity := 1 + branchCount
		scores = append(scores, map[string]any{
			"function":   stringValue(fnMap, "name"),
			"complexity": complexity,
		})
		total += float64(complexity)
	}

	out["complexity_scores"] = scores
	if len(scores) > 0 {
		out["avg_complexity"] = total / float64(len(scores))
	} else {
		out["avg_complexity"] = 0.0
	}
	return out, nil
}

// detectIssues flags style and complexity problems: over-long lines,
// multiple statements per line, undocumented functions, and functions whose
// complexity score exceeds 10.
func detectIssues(ctx context.Context, state map[string]any) (map[string]any, error) {
	out := run.CloneState(state)
	code := stringValue(state, "code")
	lines := strings.Split(code, "\n")

	var issues []any
	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if len(line) > maxLineLength {
			issues = append(issues, map[string]any{
				"line":    lineNo,
				"type":    "long_line",
				"message": "line exceeds 100 characters",
			})
		}

		if strings.Contains(line, ";") && !strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "//") {
			issues = append(issues, map[string]any{
				"line":    lineNo,
				"type":    "multiple_statements",
				"message": "multiple statements on one line",
			})
		}

		if strings.HasPrefix(trimmed, "def ") && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if !strings.HasPrefix(next, `"""`) && !strings.HasPrefix(next, "'''") {
				name := strings.SplitN(strings.TrimPrefix(trimmed, "def "), "(", 2)[0]
				issues = append(issues, map[string]any{
					"line":    lineNo,
					"type":    "missing_docstring",
					"message": "function '" + name + "' missing docstring",
				})
			}
		}
	}

	if scores, ok := state["complexity_scores"].([]any); ok {
		for _, score := range scores {
			scoreMap, _ := score.(map[string]any)
			if numberValue(scoreMap, "complexity") > 10 {
				issues = append(issues, map[string]any{
					"type":     "high_complexity",
					"function": stringValue(scoreMap, "function"),
					"message":  "high cyclomatic complexity",
				})
			}
		}
	}

	out["issues"] = issues
	out["issue_count"] = len(issues)
	return out, nil
}

// suggestion categories, one per issue type.
var suggestionCatalog = []struct {
	issueType  string
	category   string
	suggestion string
	priority   string
}{
	{"long_line", "formatting", "Break long lines into multiple lines for better readability", "medium"},
	{"missing_docstring", "documentation", "Add docstrings to all functions explaining their purpose", "high"},
	{"high_complexity", "refactoring", "Refactor complex functions into smaller, more manageable pieces", "high"},
	{"multiple_statements", "formatting", "Use separate lines for each statement", "low"},
}

// suggestImprovements turns detected issues into prioritized suggestions.
func suggestImprovements(ctx context.Context, state map[string]any) (map[string]any, error) {
	out := run.CloneState(state)

	issueTypes := make(map[string]int)
	if issues, ok := state["issues"].([]any); ok {
		for _, issue := range issues {
			issueMap, _ := issue.(map[string]any)
			issueTypes[stringValue(issueMap, "type")]++
		}
	}

	var suggestions []any
	for _, entry := range suggestionCatalog {
		if issueTypes[entry.issueType] > 0 {
			suggestions = append(suggestions, map[string]any{
				"category":   entry.category,
				"suggestion": entry.suggestion,
				"priority":   entry.priority,
			})
		}
	}

	out["suggestions"] = suggestions
	out["suggestion_count"] = len(suggestions)
	return out, nil
}

// checkQualityScore computes the overall 0..10 quality score and bumps the
// review iteration counter. Deductions: half a point per issue capped at
// five, plus complexity penalties.
func checkQualityScore(ctx context.Context, state map[string]any) (map[string]any, error) {
	out := run.CloneState(state)

	issueCount := numberValue(state, "issue_count")
	avgComplexity := numberValue(state, "avg_complexity")

	score := 10.0
	deduction := issueCount * 0.5
	if deduction > 5 {
		deduction = 5
	}
	score -= deduction

	switch {
	case avgComplexity > 10:
		score -= 2
	case avgComplexity > 5:
		score -= 1
	}

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}

	out["quality_score"] = score
	out["iteration"] = int(numberValue(state, "iteration")) + 1
	return out, nil
}

// stringValue reads a string state key, tolerating absence.
func stringValue(state map[string]any, key string) string {
	s, _ := state[key].(string)
	return s
}

// numberValue reads a numeric state key regardless of how the payload
// decoded it.
func numberValue(state map[string]any, key string) float64 {
	switch v := state[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
