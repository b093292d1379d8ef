// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nodes provides the node body registry and the built-in code
// review workflow nodes.
//
// Node bodies are plain Go functions registered under a type tag. Graph
// definitions reference them through NodeSpec.Type (falling back to
// NodeSpec.Name when the type is empty), which keeps graph wiring and
// node implementations decoupled: the same body can appear at several
// positions in a graph under different names.
package nodes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// ErrToolNotFound is returned when a tool name has no registration.
var ErrToolNotFound = errors.New("tool not found")

// Registry maps node type tags to node bodies. It implements
// engine.NodeResolver.
//
// # Thread Safety
//
// Safe for concurrent use. Registration is expected at startup but is
// allowed at any time.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]engine.NodeFunc
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]engine.NodeFunc),
	}
}

// Register binds a node body to a type tag, replacing any previous
// binding.
func (r *Registry) Register(nodeType string, fn engine.NodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[nodeType] = fn
}

// Resolve returns the node body for a node spec.
//
// # Description
//
// Dispatch uses NodeSpec.Type; when the type is empty the node name is
// used instead, matching graphs that name nodes directly after their
// behavior.
//
// # Outputs
//
//   - engine.NodeFunc: The registered body.
//   - error: engine.ErrNodeNotFound (wrapped) when no body is registered.
func (r *Registry) Resolve(spec *engine.NodeSpec) (engine.NodeFunc, error) {
	key := spec.Type
	if key == "" {
		key = spec.Name
	}

	r.mu.RLock()
	fn, ok := r.funcs[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no node body registered for type %q", engine.ErrNodeNotFound, key)
	}
	return fn, nil
}

// ToolFunc is a helper invoked by node bodies. Tools take a single
// source text input and return a JSON-domain value (map[string]any,
// []any, float64, string, bool or nil) so results can be stored in run
// state and snapshot safely.
type ToolFunc func(input string) (any, error)

// ToolRegistry maps tool names to tool functions. Tools are consumed
// only by node bodies, never resolved by the executor directly.
//
// # Thread Safety
//
// Safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]ToolFunc),
	}
}

// Register binds a tool to a name, replacing any previous binding.
func (t *ToolRegistry) Register(name string, fn ToolFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools[name] = fn
}

// Lookup returns the tool registered under name.
//
// Returns ErrToolNotFound (wrapped) when the name is unknown.
func (t *ToolRegistry) Lookup(name string) (ToolFunc, error) {
	t.mu.RLock()
	fn, ok := t.tools[name]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return fn, nil
}

// DefaultTools returns a tool registry with every built-in tool bound.
func DefaultTools() *ToolRegistry {
	t := NewToolRegistry()
	t.Register("estimate_complexity", estimateComplexityTool)
	t.Register("run_lint", runLintTool)
	t.Register("generate_suggestions", generateSuggestionsTool)
	t.Register("extract_go_functions", extractGoFunctionsTool)
	t.Register("diff_stats", diffStatsTool)
	return t
}

// DefaultRegistry returns a node registry with the built-in code review
// nodes bound to their canonical type tags, wired to the given tools.
//
// Passing a nil tool registry uses DefaultTools().
func DefaultRegistry(tools *ToolRegistry) *Registry {
	if tools == nil {
		tools = DefaultTools()
	}

	r := NewRegistry()
	r.Register("extract_functions", extractFunctionsNode(tools))
	r.Register("check_complexity", checkComplexityNode(tools))
	r.Register("detect_issues", detectIssuesNode(tools))
	r.Register("suggest_improvements", suggestImprovementsNode(tools))
	r.Register("compute_quality", computeQualityNode())
	r.Register("finalize_report", finalizeReportNode())
	return r
}
