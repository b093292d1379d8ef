// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the workflow execution core: graph and run data
// model, the per-run state machine, concurrent run management, and log
// broadcasting to live subscribers.
//
// # Description
//
// A graph is a set of named nodes connected by edges. Each edge routes either
// unconditionally to a single successor or through a branch table keyed by
// the branch value a node body returns. A run executes one graph instance
// step by step, threading a mutable state mapping through every node call,
// until it reaches a node with no outgoing edge (COMPLETED), a node failure
// (FAILED), the iteration budget (ABORTED), or cancellation (CANCELLED).
//
// # Thread Safety
//
// GraphStore and Manager are safe for concurrent use. A RunRecord is written
// only by its own executor goroutine; readers obtain deep-copied views.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// State is the mutable mapping threaded through every node call.
//
// Values are expected to stay within the JSON value domain
// (map[string]any, []any, string, float64, bool, nil). Values outside
// that domain are copied by assignment when snapshots are taken.
type State map[string]any

// NodeSpec declares one node of a graph: a unique name, a type tag used to
// look up the node body, and an opaque configuration mapping passed to
// every invocation.
type NodeSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Type   string         `json:"type,omitempty" yaml:"type,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeTarget is the routing rule for one source node.
//
// Description:
//
//	Exactly one of Node and Branches is set. Node routes unconditionally
//	to a single successor. Branches routes through the branch key returned
//	by the node body; a key absent from the table is a configuration error
//	surfaced as a failed run, never an implicit default edge.
//
// On the wire an EdgeTarget is either a bare string or a string-to-string
// mapping, matching the graph definition file format.
type EdgeTarget struct {
	Node     string
	Branches map[string]string
}

// IsBranch reports whether this target routes through a branch table.
func (t EdgeTarget) IsBranch() bool {
	return t.Branches != nil
}

// Resolve returns the successor node for the given branch key.
//
// For a single target the branch key is ignored. For a branch table the
// second return value is false when the key is absent.
func (t EdgeTarget) Resolve(branchKey string) (string, bool) {
	if !t.IsBranch() {
		return t.Node, true
	}
	target, ok := t.Branches[branchKey]
	return target, ok
}

// MarshalJSON emits a bare string for single targets and an object for
// branch tables.
func (t EdgeTarget) MarshalJSON() ([]byte, error) {
	if t.IsBranch() {
		return json.Marshal(t.Branches)
	}
	return json.Marshal(t.Node)
}

// UnmarshalJSON accepts either a bare string or a string-to-string mapping.
func (t *EdgeTarget) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		t.Node = single
		t.Branches = nil
		return nil
	}
	var branches map[string]string
	if err := json.Unmarshal(data, &branches); err != nil {
		return fmt.Errorf("edge target must be a node name or a branch table: %w", err)
	}
	t.Node = ""
	t.Branches = branches
	return nil
}

// MarshalYAML mirrors MarshalJSON for graph definition files.
func (t EdgeTarget) MarshalYAML() (any, error) {
	if t.IsBranch() {
		return t.Branches, nil
	}
	return t.Node, nil
}

// UnmarshalYAML mirrors UnmarshalJSON for graph definition files.
func (t *EdgeTarget) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		t.Node = single
		t.Branches = nil
		return nil
	}
	var branches map[string]string
	if err := value.Decode(&branches); err != nil {
		return fmt.Errorf("edge target must be a node name or a branch table: %w", err)
	}
	t.Node = ""
	t.Branches = branches
	return nil
}

// GraphDefinition is an immutable workflow graph.
//
// # Description
//
// A definition is validated once at registration and read-only afterwards.
// Every edge source, every edge target (single or branch) and the start
// node must reference a declared node name. MaxIterations bounds the total
// step count of a run, which keeps any cycle in the edge graph finite
// without graph-level cycle detection.
//
// # Thread Safety
//
// Safe for concurrent reads after registration. Callers must not mutate a
// registered definition.
type GraphDefinition struct {
	ID            uuid.UUID             `json:"id" yaml:"id"`
	Nodes         []NodeSpec            `json:"nodes" yaml:"nodes"`
	Edges         map[string]EdgeTarget `json:"edges,omitempty" yaml:"edges,omitempty"`
	StartNode     string                `json:"start_node" yaml:"start_node"`
	MaxIterations int                   `json:"max_iterations" yaml:"max_iterations"`

	// nodeIndex maps node name to its spec. Built by Validate.
	nodeIndex map[string]*NodeSpec
}

// DefaultMaxIterations is applied when a definition omits the budget.
const DefaultMaxIterations = 100

// Validate checks structural invariants and builds the node index.
//
// # Description
//
// Checks performed:
//   - at least one node, all node names non-empty and unique
//   - MaxIterations positive (zero is replaced with DefaultMaxIterations
//     before validation by the registration path)
//   - StartNode references a declared node
//   - every edge source and every edge target references a declared node
//
// # Outputs
//
//   - error: nil on success, *ConfigError (wrapping ErrInvalidGraph)
//     on the first violation found.
func (g *GraphDefinition) Validate() error {
	if len(g.Nodes) == 0 {
		return newConfigError("nodes", "graph declares no nodes")
	}

	index := make(map[string]*NodeSpec, len(g.Nodes))
	for i := range g.Nodes {
		spec := &g.Nodes[i]
		if spec.Name == "" {
			return newConfigError("nodes", "node %d has an empty name", i)
		}
		if _, dup := index[spec.Name]; dup {
			return newConfigError("nodes", "duplicate node name %q", spec.Name)
		}
		index[spec.Name] = spec
	}

	if g.MaxIterations <= 0 {
		return newConfigError("max_iterations", "must be positive, got %d", g.MaxIterations)
	}

	if g.StartNode == "" {
		return newConfigError("start_node", "missing start node")
	}
	if _, ok := index[g.StartNode]; !ok {
		return newConfigError("start_node", "start node %q is not declared", g.StartNode)
	}

	for source, target := range g.Edges {
		if _, ok := index[source]; !ok {
			return newConfigError("edges", "edge source %q is not declared", source)
		}
		if target.IsBranch() {
			if len(target.Branches) == 0 {
				return newConfigError("edges", "edge from %q has an empty branch table", source)
			}
			for key, dest := range target.Branches {
				if _, ok := index[dest]; !ok {
					return newConfigError("edges",
						"branch %q from %q targets undeclared node %q", key, source, dest)
				}
			}
		} else {
			if target.Node == "" {
				return newConfigError("edges", "edge from %q has an empty target", source)
			}
			if _, ok := index[target.Node]; !ok {
				return newConfigError("edges",
					"edge from %q targets undeclared node %q", source, target.Node)
			}
		}
	}

	g.nodeIndex = index
	return nil
}

// Node returns the spec for the named node.
func (g *GraphDefinition) Node(name string) (*NodeSpec, bool) {
	spec, ok := g.nodeIndex[name]
	return spec, ok
}

// Next resolves the successor of the named node given the branch key the
// node body returned.
//
// # Outputs
//
//   - string: the successor node name, empty when the run is terminal.
//   - error: nil when a successor (or terminal) is resolved;
//     ErrUnresolvedBranch (wrapped) when the edge is a branch table and
//     the key is absent.
//
// A missing edge entry is not an error: it marks the node as terminal.
func (g *GraphDefinition) Next(node, branchKey string) (string, error) {
	target, ok := g.Edges[node]
	if !ok {
		return "", nil
	}
	next, ok := target.Resolve(branchKey)
	if !ok {
		return "", fmt.Errorf("%w: node %q returned branch key %q", ErrUnresolvedBranch, node, branchKey)
	}
	return next, nil
}
