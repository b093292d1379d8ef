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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/sourcegraph/go-diff/diff"
)

// MaxLineLength is the lint threshold for long lines.
const MaxLineLength = 120

// complexityKeywords drive the heuristic complexity score. Counting is
// substring based on the lowercased source, so the score is a rough
// branching estimate, not a parse.
var complexityKeywords = []string{
	"if ", "for ", "while ", "elif ", "case ", "except ", "and ", "or ", "return ",
}

// estimateComplexityTool scores a function body between 1 and 100.
// Empty input scores 0.
func estimateComplexityTool(source string) (any, error) {
	if source == "" {
		return float64(0), nil
	}

	score := 1
	lower := strings.ToLower(source)
	for _, keyword := range complexityKeywords {
		score += strings.Count(lower, keyword)
	}

	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}
	return float64(score), nil
}

// runLintTool applies line-level checks to a function body.
//
// # Description
//
// Checks are heuristic and language-tolerant: long lines and trailing
// whitespace apply everywhere, and the missing documentation check
// covers both Python style docstrings after a "def" line and Go style
// comment lines before a "func" line.
//
// # Outputs
//
//   - any: map with "issue_count" (float64) and "issues" ([]any of
//     maps with "type", "line", "detail").
func runLintTool(source string) (any, error) {
	issues := []any{}
	lines := strings.Split(source, "\n")

	for i, text := range lines {
		if len(text) > MaxLineLength {
			issues = append(issues, map[string]any{
				"type":   "long_line",
				"line":   float64(i + 1),
				"detail": fmt.Sprintf("Line longer than %d characters", MaxLineLength),
			})
		}
		if strings.TrimRight(text, " \t\r") != text {
			issues = append(issues, map[string]any{
				"type":   "trailing_whitespace",
				"line":   float64(i + 1),
				"detail": "Line contains trailing whitespace",
			})
		}
	}

	if issue, found := missingDocIssue(lines); found {
		issues = append(issues, issue)
	}

	return map[string]any{
		"issue_count": float64(len(issues)),
		"issues":      issues,
	}, nil
}

// missingDocIssue reports the first function declaration that carries
// no documentation. Only the first declaration is inspected.
func missingDocIssue(lines []string) (map[string]any, bool) {
	for i, text := range lines {
		stripped := strings.TrimSpace(text)

		if strings.HasPrefix(stripped, "def ") {
			for _, follow := range tail(lines, i+1, 3) {
				f := strings.TrimSpace(follow)
				if strings.HasPrefix(f, `"""`) || strings.HasPrefix(f, "'''") {
					return nil, false
				}
			}
			return map[string]any{
				"type":   "missing_docstring",
				"line":   float64(i + 1),
				"detail": "Function may be missing a docstring",
			}, true
		}

		if strings.HasPrefix(stripped, "func ") {
			if i > 0 && strings.HasPrefix(strings.TrimSpace(lines[i-1]), "//") {
				return nil, false
			}
			return map[string]any{
				"type":   "missing_docstring",
				"line":   float64(i + 1),
				"detail": "Function may be missing a doc comment",
			}, true
		}
	}
	return nil, false
}

// tail returns up to n lines starting at index from.
func tail(lines []string, from, n int) []string {
	if from >= len(lines) {
		return nil
	}
	end := from + n
	if end > len(lines) {
		end = len(lines)
	}
	return lines[from:end]
}

// generateSuggestionsTool derives improvement suggestions from the
// complexity and lint tools.
//
// # Outputs
//
//   - any: map with "suggestions" ([]any of maps with "type", "detail").
func generateSuggestionsTool(source string) (any, error) {
	suggestions := []any{}

	complexityRaw, err := estimateComplexityTool(source)
	if err != nil {
		return nil, err
	}
	if complexityRaw.(float64) > 10 {
		suggestions = append(suggestions, map[string]any{
			"type":   "split_function",
			"detail": "Function appears complex and could be split into smaller parts",
		})
	}

	lintRaw, err := runLintTool(source)
	if err != nil {
		return nil, err
	}
	for _, raw := range lintRaw.(map[string]any)["issues"].([]any) {
		issue := raw.(map[string]any)
		switch issue["type"] {
		case "long_line":
			suggestions = append(suggestions, map[string]any{
				"type":   "wrap_long_line",
				"detail": fmt.Sprintf("Consider wrapping line %v", issue["line"]),
			})
		case "missing_docstring":
			suggestions = append(suggestions, map[string]any{
				"type":   "add_docstring",
				"detail": "Add a descriptive docstring",
			})
		}
	}

	return map[string]any{"suggestions": suggestions}, nil
}

// extractGoFunctionsTool extracts top-level function and method
// declarations from Go source using tree-sitter.
//
// # Description
//
// The parser is error-tolerant. Syntactically invalid input yields the
// declarations tree-sitter can still recognize rather than an error. A
// new parser instance is created per call so the tool is safe for
// concurrent use.
//
// # Outputs
//
//   - any: []any of maps with "function_name", "start_line",
//     "end_line" (float64, 1-based) and "source".
func extractGoFunctionsTool(source string) (any, error) {
	content := []byte(source)

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Go source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return []any{}, nil
	}

	extracted := []any{}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration", "method_declaration":
			name := ""
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				name = string(content[nameNode.StartByte():nameNode.EndByte()])
			}
			extracted = append(extracted, map[string]any{
				"function_name": name,
				"start_line":    float64(child.StartPoint().Row + 1),
				"end_line":      float64(child.EndPoint().Row + 1),
				"source":        string(content[child.StartByte():child.EndByte()]),
			})
		}
	}
	return extracted, nil
}

// diffStatsTool summarizes a unified diff.
//
// # Outputs
//
//   - any: map with "files" (float64), "hunks" (float64),
//     "lines_added" (float64), "lines_deleted" (float64) and
//     "changed_files" ([]any of file names).
func diffStatsTool(source string) (any, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(source)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}

	var hunks, added, deleted int
	changed := []any{}

	for _, fd := range fileDiffs {
		changed = append(changed, cleanDiffPath(fd.NewName))
		hunks += len(fd.Hunks)
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
					added++
				} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
					deleted++
				}
			}
		}
	}

	return map[string]any{
		"files":         float64(len(fileDiffs)),
		"hunks":         float64(hunks),
		"lines_added":   float64(added),
		"lines_deleted": float64(deleted),
		"changed_files": changed,
	}, nil
}

// cleanDiffPath strips the a/ or b/ prefix a git diff carries.
func cleanDiffPath(path string) string {
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}
