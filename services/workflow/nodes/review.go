// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// DefaultQualityThreshold is the compute_quality pass bar when a node
// config does not override it.
const DefaultQualityThreshold = 90.0

// extractFunctionsNode splits state["source_code"] into per-function
// records under state["functions"].
//
// # Description
//
// source_code is either a single source string or a map of filename to
// content. Files named *.go go through the tree-sitter extractor; all
// other content goes through a line-based "def" scanner that treats each
// definition line as the start of a new function. When state["diff"]
// holds a unified diff, its summary lands in metadata["diff_stats"].
func extractFunctionsNode(tools *ToolRegistry) engine.NodeFunc {
	return func(_ context.Context, state engine.State, _ map[string]any) (engine.State, string, string, error) {
		fileMap, err := sourceFiles(state["source_code"])
		if err != nil {
			return nil, "", "", err
		}

		extracted := []any{}
		for filename, content := range fileMap {
			var records []any
			if strings.HasSuffix(filename, ".go") {
				extractor, err := tools.Lookup("extract_go_functions")
				if err != nil {
					return nil, "", "", err
				}
				raw, err := extractor(content)
				if err != nil {
					return nil, "", "", fmt.Errorf("extract %s: %w", filename, err)
				}
				recs, ok := raw.([]any)
				if !ok {
					return nil, "", "", fmt.Errorf("extract_go_functions returned %T, want a record list", raw)
				}
				records = recs
			} else {
				records = scanDefinitions(content)
			}

			for _, raw := range records {
				record, ok := raw.(map[string]any)
				if !ok {
					return nil, "", "", fmt.Errorf("function record for %s is %T, want a map", filename, raw)
				}
				record["filename"] = filename
				extracted = append(extracted, record)
			}
		}

		if diffText, ok := state["diff"].(string); ok && diffText != "" {
			statsTool, err := tools.Lookup("diff_stats")
			if err != nil {
				return nil, "", "", err
			}
			stats, err := statsTool(diffText)
			if err != nil {
				return nil, "", "", err
			}
			metadata(state)["diff_stats"] = stats
		}

		state["functions"] = extracted
		return state, "", fmt.Sprintf("extracted %d functions", len(extracted)), nil
	}
}

// checkComplexityNode scores every extracted function and derives the
// initial quality score.
//
// quality_score = max(0, 100 - average complexity), or 100 when there
// are no functions to score.
func checkComplexityNode(tools *ToolRegistry) engine.NodeFunc {
	return func(_ context.Context, state engine.State, _ map[string]any) (engine.State, string, string, error) {
		estimate, err := tools.Lookup("estimate_complexity")
		if err != nil {
			return nil, "", "", err
		}

		results := []any{}
		var total float64
		for _, fn := range functions(state) {
			raw, err := estimate(stringField(fn, "source"))
			if err != nil {
				return nil, "", "", err
			}
			score, ok := raw.(float64)
			if !ok {
				return nil, "", "", fmt.Errorf("estimate_complexity returned %T, want a number", raw)
			}
			total += score
			results = append(results, map[string]any{
				"function_name": fn["function_name"],
				"complexity":    score,
			})
		}

		quality := 100.0
		if len(results) > 0 {
			quality = math.Max(0, 100.0-total/float64(len(results)))
		}

		metadata(state)["complexity"] = results
		state["quality_score"] = quality
		return state, "", fmt.Sprintf("computed complexity for %d functions", len(results)), nil
	}
}

// detectIssuesNode lints every extracted function and collects the
// findings under state["issues"]. Functions with no findings are
// omitted.
func detectIssuesNode(tools *ToolRegistry) engine.NodeFunc {
	return func(_ context.Context, state engine.State, _ map[string]any) (engine.State, string, string, error) {
		lint, err := tools.Lookup("run_lint")
		if err != nil {
			return nil, "", "", err
		}

		collected := []any{}
		for _, fn := range functions(state) {
			raw, err := lint(stringField(fn, "source"))
			if err != nil {
				return nil, "", "", err
			}
			result, ok := raw.(map[string]any)
			if !ok {
				return nil, "", "", fmt.Errorf("run_lint returned %T, want a result map", raw)
			}
			if numeric(result["issue_count"]) > 0 {
				collected = append(collected, map[string]any{
					"function_name": fn["function_name"],
					"issues":        result["issues"],
				})
			}
		}

		state["issues"] = collected
		return state, "", fmt.Sprintf("detected issues in %d functions", len(collected)), nil
	}
}

// suggestImprovementsNode generates suggestions per function and nudges
// the quality score.
//
// The score rises by log1p(suggestion count) * 2, or by 1 when there is
// nothing to suggest, capped at 100. The bump models review effort
// converging: each retry round raises quality a little so bounded loops
// terminate before the iteration budget on realistic inputs.
func suggestImprovementsNode(tools *ToolRegistry) engine.NodeFunc {
	return func(_ context.Context, state engine.State, _ map[string]any) (engine.State, string, string, error) {
		generate, err := tools.Lookup("generate_suggestions")
		if err != nil {
			return nil, "", "", err
		}

		perFunction := []any{}
		count := 0
		for _, fn := range functions(state) {
			raw, err := generate(stringField(fn, "source"))
			if err != nil {
				return nil, "", "", err
			}
			result, ok := raw.(map[string]any)
			if !ok {
				return nil, "", "", fmt.Errorf("generate_suggestions returned %T, want a result map", raw)
			}
			suggestions, ok := result["suggestions"].([]any)
			if !ok {
				return nil, "", "", fmt.Errorf("generate_suggestions result has no suggestion list")
			}
			count += len(suggestions)
			perFunction = append(perFunction, map[string]any{
				"function_name": fn["function_name"],
				"suggestions":   suggestions,
			})
		}

		state["suggestions"] = perFunction

		quality := numeric(state["quality_score"])
		if count > 0 {
			quality += math.Log1p(float64(count)) * 2.0
		} else {
			quality += 1.0
		}
		state["quality_score"] = math.Min(100.0, quality)

		return state, "", fmt.Sprintf("generated suggestions for %d functions", len(perFunction)), nil
	}
}

// computeQualityNode gates the review loop.
//
// Emits branch "pass" when quality_score has reached the threshold
// (config key "threshold", default DefaultQualityThreshold) and "retry"
// otherwise.
func computeQualityNode() engine.NodeFunc {
	return func(_ context.Context, state engine.State, config map[string]any) (engine.State, string, string, error) {
		threshold := DefaultQualityThreshold
		if raw, ok := config["threshold"]; ok {
			threshold = numeric(raw)
		}

		current := numeric(state["quality_score"])
		if current >= threshold {
			return state, "pass", fmt.Sprintf("quality target reached: %g", current), nil
		}
		return state, "retry", fmt.Sprintf("quality below threshold: %g", current), nil
	}
}

// finalizeReportNode summarizes the run into metadata["report"].
func finalizeReportNode() engine.NodeFunc {
	return func(_ context.Context, state engine.State, _ map[string]any) (engine.State, string, string, error) {
		issues, _ := state["issues"].([]any)
		suggestions, _ := state["suggestions"].([]any)

		metadata(state)["report"] = map[string]any{
			"function_count":   float64(len(functions(state))),
			"flagged_count":    float64(len(issues)),
			"suggestion_count": float64(len(suggestions)),
			"quality_score":    numeric(state["quality_score"]),
		}
		return state, "", "review report finalized", nil
	}
}

// sourceFiles normalizes source_code into a filename to content map. A
// bare string is treated as a single unnamed file.
func sourceFiles(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]string{}, nil
	case string:
		return map[string]string{"main.py": v}, nil
	case map[string]any:
		files := make(map[string]string, len(v))
		for name, content := range v {
			text, ok := content.(string)
			if !ok {
				return nil, fmt.Errorf("source_code entry %q is not a string", name)
			}
			files[name] = text
		}
		return files, nil
	default:
		return nil, fmt.Errorf("source_code must be a string or a map of filename to content, got %T", raw)
	}
}

// scanDefinitions is the line-based fallback extractor for non-Go
// sources. Every "def " line opens a new function record that runs to
// the next definition or end of input.
func scanDefinitions(content string) []any {
	lines := strings.Split(content, "\n")

	extracted := []any{}
	var current []string
	name := ""
	startLine := 0

	flush := func(endLine int) {
		if name == "" {
			return
		}
		extracted = append(extracted, map[string]any{
			"function_name": name,
			"start_line":    float64(startLine),
			"end_line":      float64(endLine),
			"source":        strings.Join(current, "\n"),
		})
	}

	for i, text := range lines {
		stripped := strings.TrimLeft(text, " \t")
		if strings.HasPrefix(stripped, "def ") {
			flush(i)
			name = strings.TrimSpace(strings.TrimPrefix(strings.SplitN(stripped, "(", 2)[0], "def "))
			startLine = i + 1
			current = []string{text}
		} else if name != "" {
			current = append(current, text)
		}
	}
	flush(len(lines))

	return extracted
}

// functions returns state["functions"] as typed records, tolerating an
// absent or foreign-typed value.
func functions(state engine.State) []map[string]any {
	raw, _ := state["functions"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if record, ok := item.(map[string]any); ok {
			out = append(out, record)
		}
	}
	return out
}

// metadata returns state["metadata"], creating it when absent.
func metadata(state engine.State) map[string]any {
	if m, ok := state["metadata"].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	state["metadata"] = m
	return m
}

// stringField reads a string value from a record, defaulting to "".
func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}

// numeric coerces JSON-domain numbers to float64.
func numeric(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
