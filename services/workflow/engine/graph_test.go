// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func twoNodeGraph() *GraphDefinition {
	return &GraphDefinition{
		Nodes: []NodeSpec{
			{Name: "first"},
			{Name: "second"},
		},
		Edges: map[string]EdgeTarget{
			"first": {Node: "second"},
		},
		StartNode:     "first",
		MaxIterations: 10,
	}
}

func TestGraphDefinition_Validate_OK(t *testing.T) {
	g := twoNodeGraph()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if _, ok := g.Node("second"); !ok {
		t.Error("expected node index to contain declared node")
	}
}

func TestGraphDefinition_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GraphDefinition)
	}{
		{"no nodes", func(g *GraphDefinition) { g.Nodes = nil }},
		{"empty node name", func(g *GraphDefinition) { g.Nodes[1].Name = "" }},
		{"duplicate node name", func(g *GraphDefinition) { g.Nodes[1].Name = "first" }},
		{"zero max iterations", func(g *GraphDefinition) { g.MaxIterations = 0 }},
		{"negative max iterations", func(g *GraphDefinition) { g.MaxIterations = -3 }},
		{"missing start node", func(g *GraphDefinition) { g.StartNode = "" }},
		{"undeclared start node", func(g *GraphDefinition) { g.StartNode = "ghost" }},
		{"undeclared edge source", func(g *GraphDefinition) {
			g.Edges["ghost"] = EdgeTarget{Node: "first"}
		}},
		{"undeclared single target", func(g *GraphDefinition) {
			g.Edges["first"] = EdgeTarget{Node: "ghost"}
		}},
		{"empty single target", func(g *GraphDefinition) {
			g.Edges["first"] = EdgeTarget{}
		}},
		{"empty branch table", func(g *GraphDefinition) {
			g.Edges["first"] = EdgeTarget{Branches: map[string]string{}}
		}},
		{"undeclared branch target", func(g *GraphDefinition) {
			g.Edges["first"] = EdgeTarget{Branches: map[string]string{"go": "ghost"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := twoNodeGraph()
			tt.mutate(g)

			err := g.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidGraph) {
				t.Errorf("expected ErrInvalidGraph, got %v", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestGraphDefinition_Next(t *testing.T) {
	g := &GraphDefinition{
		Nodes: []NodeSpec{{Name: "gate"}, {Name: "retry"}, {Name: "done"}},
		Edges: map[string]EdgeTarget{
			"gate":  {Branches: map[string]string{"retry": "retry", "pass": "done"}},
			"retry": {Node: "gate"},
		},
		StartNode:     "gate",
		MaxIterations: 10,
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	next, err := g.Next("retry", "anything")
	if err != nil || next != "gate" {
		t.Errorf("single target: got (%q, %v), want (gate, nil)", next, err)
	}

	next, err = g.Next("gate", "pass")
	if err != nil || next != "done" {
		t.Errorf("branch pass: got (%q, %v), want (done, nil)", next, err)
	}

	// Missing edge entry is terminal, not an error.
	next, err = g.Next("done", "")
	if err != nil || next != "" {
		t.Errorf("terminal node: got (%q, %v), want (\"\", nil)", next, err)
	}

	_, err = g.Next("gate", "sideways")
	if !errors.Is(err, ErrUnresolvedBranch) {
		t.Errorf("expected ErrUnresolvedBranch, got %v", err)
	}

	// An empty branch key is just another absent key.
	_, err = g.Next("gate", "")
	if !errors.Is(err, ErrUnresolvedBranch) {
		t.Errorf("expected ErrUnresolvedBranch for empty key, got %v", err)
	}
}

func TestEdgeTarget_JSONUnion(t *testing.T) {
	var single EdgeTarget
	if err := json.Unmarshal([]byte(`"next_node"`), &single); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if single.IsBranch() || single.Node != "next_node" {
		t.Errorf("got %+v, want single target next_node", single)
	}

	var branch EdgeTarget
	if err := json.Unmarshal([]byte(`{"pass":"done","retry":"gate"}`), &branch); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if !branch.IsBranch() || branch.Branches["pass"] != "done" {
		t.Errorf("got %+v, want branch table", branch)
	}

	if err := json.Unmarshal([]byte(`42`), &single); err == nil {
		t.Error("expected error for non-string, non-map target")
	}

	out, err := json.Marshal(branch)
	if err != nil {
		t.Fatalf("marshal branch: %v", err)
	}
	var roundTrip EdgeTarget
	if err := json.Unmarshal(out, &roundTrip); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if roundTrip.Branches["retry"] != "gate" {
		t.Errorf("round trip lost branch table: %+v", roundTrip)
	}
}

func TestEdgeTarget_YAMLUnion(t *testing.T) {
	var target struct {
		Edges map[string]EdgeTarget `yaml:"edges"`
	}
	src := "edges:\n  first: second\n  gate:\n    pass: done\n    retry: gate\n"
	if err := yaml.Unmarshal([]byte(src), &target); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}

	if target.Edges["first"].Node != "second" {
		t.Errorf("single target: got %+v", target.Edges["first"])
	}
	if target.Edges["gate"].Branches["retry"] != "gate" {
		t.Errorf("branch table: got %+v", target.Edges["gate"])
	}
}
