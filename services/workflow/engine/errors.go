// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for the workflow engine.
var (
	// ErrInvalidGraph indicates a graph definition failed validation.
	ErrInvalidGraph = errors.New("invalid graph definition")

	// ErrGraphNotFound indicates the requested graph id is unknown.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrRunNotFound indicates the requested run id is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished indicates an operation targeted a run that already
	// reached a terminal status.
	ErrRunFinished = errors.New("run already finished")

	// ErrNodeNotFound indicates no node body is registered for a NodeSpec.
	ErrNodeNotFound = errors.New("node function not found")

	// ErrUnresolvedBranch indicates a node returned a branch key that is
	// absent from its branch table. There is no default edge; the run fails.
	ErrUnresolvedBranch = errors.New("unresolved branch key")

	// ErrIterationBudget indicates a run exceeded its max_iterations budget.
	// Distinct from a node failure so callers can tell a configured safety
	// stop apart from a bug.
	ErrIterationBudget = errors.New("iteration budget exceeded")
)

// ConfigError describes a structural problem in a graph definition.
//
// Description:
//
//	ConfigError is returned by GraphStore.Register (and GraphDefinition.Validate)
//	when a definition references undeclared node names or carries an invalid
//	iteration budget. It wraps ErrInvalidGraph so callers can test with
//	errors.Is while still reading the offending field.
type ConfigError struct {
	// Field is the part of the definition that failed ("start_node",
	// "edges", "nodes", "max_iterations").
	Field string

	// Detail is a human-readable description of the violation.
	Detail string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidGraph.Error(), e.Field, e.Detail)
}

// Unwrap allows errors.Is(err, ErrInvalidGraph).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidGraph
}

// newConfigError builds a ConfigError for the given field.
func newConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
