// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"errors"
	"strings"
	"testing"
)

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   float64
	}{
		{"empty", "", 0},
		{"no keywords", "x = 1", 1},
		{"single branch", "if x:\n    return 1", 3},
		{"case insensitive", "IF x:\n    RETURN 1", 3},
		{"clamped at 100", strings.Repeat("if x or y:\n", 80), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := estimateComplexityTool(tt.source)
			if err != nil {
				t.Fatalf("estimateComplexityTool() error = %v", err)
			}
			if got.(float64) != tt.want {
				t.Errorf("estimateComplexityTool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunLint_LongLine(t *testing.T) {
	source := "short\n" + strings.Repeat("x", 121)

	issues := lintIssues(t, source)
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(issues), issues)
	}
	issue := issues[0].(map[string]any)
	if issue["type"] != "long_line" {
		t.Errorf("issue type = %v, want long_line", issue["type"])
	}
	if issue["line"].(float64) != 2 {
		t.Errorf("issue line = %v, want 2", issue["line"])
	}
}

func TestRunLint_TrailingWhitespace(t *testing.T) {
	issues := lintIssues(t, "clean\ndirty   ")
	if len(issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(issues), issues)
	}
	if issues[0].(map[string]any)["type"] != "trailing_whitespace" {
		t.Errorf("issue type = %v, want trailing_whitespace", issues[0].(map[string]any)["type"])
	}
}

func TestRunLint_MissingDocstring(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		flagged bool
	}{
		{"python without docstring", "def f(x):\n    return x", true},
		{"python with docstring", "def f(x):\n    \"\"\"Doc.\"\"\"\n    return x", false},
		{"go without doc comment", "func F() {}", true},
		{"go with doc comment", "// F does nothing.\nfunc F() {}", false},
		{"no function at all", "x = 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagged := false
			for _, raw := range lintIssues(t, tt.source) {
				if raw.(map[string]any)["type"] == "missing_docstring" {
					flagged = true
				}
			}
			if flagged != tt.flagged {
				t.Errorf("missing_docstring flagged = %v, want %v", flagged, tt.flagged)
			}
		})
	}
}

func TestGenerateSuggestions(t *testing.T) {
	// Complex enough to trigger split_function, plus a long undocumented
	// python function body.
	source := "def f(x):\n" +
		strings.Repeat("    if x and x or x:\n        return x\n", 4) +
		"    " + strings.Repeat("y", 130) + "\n"

	raw, err := generateSuggestionsTool(source)
	if err != nil {
		t.Fatalf("generateSuggestionsTool() error = %v", err)
	}
	suggestions := raw.(map[string]any)["suggestions"].([]any)

	types := map[string]int{}
	for _, s := range suggestions {
		types[s.(map[string]any)["type"].(string)]++
	}

	for _, want := range []string{"split_function", "wrap_long_line", "add_docstring"} {
		if types[want] == 0 {
			t.Errorf("missing suggestion type %q in %v", want, types)
		}
	}
}

func TestExtractGoFunctions(t *testing.T) {
	source := `package demo

// Add sums two ints.
func Add(a, b int) int {
	return a + b
}

type T struct{}

func (t T) Method() {}
`
	raw, err := extractGoFunctionsTool(source)
	if err != nil {
		t.Fatalf("extractGoFunctionsTool() error = %v", err)
	}
	records := raw.([]any)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %v", len(records), records)
	}

	first := records[0].(map[string]any)
	if first["function_name"] != "Add" {
		t.Errorf("function_name = %v, want Add", first["function_name"])
	}
	if first["start_line"].(float64) != 4 {
		t.Errorf("start_line = %v, want 4", first["start_line"])
	}
	if !strings.Contains(first["source"].(string), "return a + b") {
		t.Errorf("source does not contain function body: %q", first["source"])
	}

	second := records[1].(map[string]any)
	if second["function_name"] != "Method" {
		t.Errorf("function_name = %v, want Method", second["function_name"])
	}
}

func TestExtractGoFunctions_EmptyInput(t *testing.T) {
	raw, err := extractGoFunctionsTool("")
	if err != nil {
		t.Fatalf("extractGoFunctionsTool() error = %v", err)
	}
	if len(raw.([]any)) != 0 {
		t.Errorf("got %v, want no records", raw)
	}
}

func TestDiffStats(t *testing.T) {
	diffText := `--- a/hello.go
+++ b/hello.go
@@ -1,4 +1,5 @@
 package main
+
 func main() {
-	old()
+	new()
 }
`
	raw, err := diffStatsTool(diffText)
	if err != nil {
		t.Fatalf("diffStatsTool() error = %v", err)
	}
	stats := raw.(map[string]any)

	if stats["files"].(float64) != 1 {
		t.Errorf("files = %v, want 1", stats["files"])
	}
	if stats["hunks"].(float64) != 1 {
		t.Errorf("hunks = %v, want 1", stats["hunks"])
	}
	if stats["lines_added"].(float64) != 2 {
		t.Errorf("lines_added = %v, want 2", stats["lines_added"])
	}
	if stats["lines_deleted"].(float64) != 1 {
		t.Errorf("lines_deleted = %v, want 1", stats["lines_deleted"])
	}
	changed := stats["changed_files"].([]any)
	if len(changed) != 1 || changed[0] != "hello.go" {
		t.Errorf("changed_files = %v, want [hello.go]", changed)
	}
}

func TestDiffStats_Malformed(t *testing.T) {
	malformed := "--- a/x\n+++ b/x\n@@ bogus @@\n"
	if _, err := diffStatsTool(malformed); err == nil {
		t.Error("expected error for malformed diff input")
	}
}

func TestToolRegistry_Lookup(t *testing.T) {
	tools := DefaultTools()

	for _, name := range []string{
		"estimate_complexity", "run_lint", "generate_suggestions",
		"extract_go_functions", "diff_stats",
	} {
		if _, err := tools.Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error = %v", name, err)
		}
	}

	_, err := tools.Lookup("no_such_tool")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Lookup(no_such_tool) error = %v, want ErrToolNotFound", err)
	}
}

// lintIssues runs the lint tool and returns its issue list.
func lintIssues(t *testing.T, source string) []any {
	t.Helper()

	raw, err := runLintTool(source)
	if err != nil {
		t.Fatalf("runLintTool() error = %v", err)
	}
	return raw.(map[string]any)["issues"].([]any)
}
