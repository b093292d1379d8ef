// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire types for the workflow API.
//
// Request types carry gin binding tags for field-level validation; the
// structural rules that span fields (edge targets exist, start node is
// declared) live in engine.GraphDefinition.Validate and surface through
// the conversion helpers here.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// validate applies the binding tags outside gin, for payloads that
// arrive from definition files instead of HTTP requests.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

// NodeSpecRequest describes one node in a graph creation request.
type NodeSpecRequest struct {
	Name   string         `json:"name" yaml:"name" binding:"required"`
	Type   string         `json:"type,omitempty" yaml:"type,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeSpecRequest describes one edge in a graph creation request.
//
// ToNode is either a plain node name or an object mapping branch keys
// to node names, mirroring the definition file format.
type EdgeSpecRequest struct {
	FromNode string `json:"from_node" yaml:"from_node" binding:"required"`
	ToNode   any    `json:"to_node" yaml:"to_node" binding:"required"`
}

// GraphCreateRequest is the POST /v1/graphs payload.
type GraphCreateRequest struct {
	Nodes         []NodeSpecRequest `json:"nodes" yaml:"nodes" binding:"required,min=1,dive"`
	Edges         []EdgeSpecRequest `json:"edges" yaml:"edges" binding:"omitempty,dive"`
	StartNode     string            `json:"start_node" yaml:"start_node" binding:"required"`
	MaxIterations int               `json:"max_iterations" yaml:"max_iterations" binding:"omitempty,gt=0"`
}

// ToGraphDefinition converts the request into an engine definition.
//
// # Outputs
//
//   - *engine.GraphDefinition: Unvalidated definition; callers register
//     it through engine.GraphStore which validates.
//   - error: engine.ErrInvalidGraph (wrapped) for malformed edge
//     targets or duplicate edge sources.
func (r *GraphCreateRequest) ToGraphDefinition() (*engine.GraphDefinition, error) {
	if err := validate.Struct(r); err != nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrInvalidGraph, err)
	}

	nodes := make([]engine.NodeSpec, len(r.Nodes))
	for i, n := range r.Nodes {
		nodes[i] = engine.NodeSpec{Name: n.Name, Type: n.Type, Config: n.Config}
	}

	edges := make(map[string]engine.EdgeTarget, len(r.Edges))
	for _, e := range r.Edges {
		if _, dup := edges[e.FromNode]; dup {
			return nil, fmt.Errorf("%w: duplicate edge source %q", engine.ErrInvalidGraph, e.FromNode)
		}
		target, err := edgeTarget(e)
		if err != nil {
			return nil, err
		}
		edges[e.FromNode] = target
	}

	return &engine.GraphDefinition{
		Nodes:         nodes,
		Edges:         edges,
		StartNode:     r.StartNode,
		MaxIterations: r.MaxIterations,
	}, nil
}

// edgeTarget decodes the string-or-object to_node union.
func edgeTarget(e EdgeSpecRequest) (engine.EdgeTarget, error) {
	switch v := e.ToNode.(type) {
	case string:
		if v == "" {
			return engine.EdgeTarget{}, fmt.Errorf(
				"%w: edge from %q has an empty target", engine.ErrInvalidGraph, e.FromNode)
		}
		return engine.EdgeTarget{Node: v}, nil
	case map[string]any:
		if len(v) == 0 {
			return engine.EdgeTarget{}, fmt.Errorf(
				"%w: edge from %q has an empty branch table", engine.ErrInvalidGraph, e.FromNode)
		}
		branches := make(map[string]string, len(v))
		for key, raw := range v {
			name, ok := raw.(string)
			if !ok || name == "" {
				return engine.EdgeTarget{}, fmt.Errorf(
					"%w: edge from %q branch %q must name a node", engine.ErrInvalidGraph, e.FromNode, key)
			}
			branches[key] = name
		}
		return engine.EdgeTarget{Branches: branches}, nil
	default:
		return engine.EdgeTarget{}, fmt.Errorf(
			"%w: edge from %q target must be a node name or a branch table", engine.ErrInvalidGraph, e.FromNode)
	}
}

// GraphCreateResponse is the POST /v1/graphs response body.
type GraphCreateResponse struct {
	GraphID string `json:"graph_id"`
}

// GraphView is the GET /v1/graphs/:graphId response body.
type GraphView struct {
	GraphID       string            `json:"graph_id"`
	Nodes         []NodeSpecRequest `json:"nodes"`
	Edges         []EdgeSpecRequest `json:"edges"`
	StartNode     string            `json:"start_node"`
	MaxIterations int               `json:"max_iterations"`
}

// NewGraphView projects an engine definition back into wire form.
// Branch tables come back as objects, single targets as strings.
func NewGraphView(def *engine.GraphDefinition) GraphView {
	nodes := make([]NodeSpecRequest, len(def.Nodes))
	for i, n := range def.Nodes {
		nodes[i] = NodeSpecRequest{Name: n.Name, Type: n.Type, Config: n.Config}
	}

	edges := make([]EdgeSpecRequest, 0, len(def.Edges))
	for from, target := range def.Edges {
		var to any
		if target.IsBranch() {
			table := make(map[string]any, len(target.Branches))
			for key, node := range target.Branches {
				table[key] = node
			}
			to = table
		} else {
			to = target.Node
		}
		edges = append(edges, EdgeSpecRequest{FromNode: from, ToNode: to})
	}

	return GraphView{
		GraphID:       def.ID.String(),
		Nodes:         nodes,
		Edges:         edges,
		StartNode:     def.StartNode,
		MaxIterations: def.MaxIterations,
	}
}

// RunCreateRequest is the POST /v1/runs payload.
type RunCreateRequest struct {
	GraphID      string         `json:"graph_id" binding:"required,uuid"`
	InitialState map[string]any `json:"initial_state,omitempty"`
}

// GraphUUID parses the request graph id.
func (r *RunCreateRequest) GraphUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(r.GraphID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid graph_id %q: %w", r.GraphID, err)
	}
	return id, nil
}

// RunCreateResponse is the POST /v1/runs response body.
type RunCreateResponse struct {
	RunID string `json:"run_id"`
}

// ErrorResponse is the error envelope for every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
