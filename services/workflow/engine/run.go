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
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a run.
//
// Lifecycle:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED      (node failure, unresolved branch)
//	                  ↘ ABORTED     (iteration budget exceeded)
//	                  ↘ CANCELLED   (caller cancellation between steps)
type RunStatus string

const (
	// StatusPending means the run is created but has not started executing.
	StatusPending RunStatus = "PENDING"

	// StatusRunning means the run's executor is driving steps.
	StatusRunning RunStatus = "RUNNING"

	// StatusCompleted means the run reached a node with no outgoing edge.
	StatusCompleted RunStatus = "COMPLETED"

	// StatusFailed means a node body failed or a branch key could not be
	// resolved. No retry is attempted.
	StatusFailed RunStatus = "FAILED"

	// StatusAborted means the run hit its max_iterations budget. Kept
	// distinct from FAILED so callers can tell a configured safety stop
	// apart from a bug.
	StatusAborted RunStatus = "ABORTED"

	// StatusCancelled means the caller cancelled the run between steps.
	StatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted, StatusCancelled:
		return true
	default:
		return false
	}
}

// LogEntry records one executed (or failed) step of a run.
//
// Entries are append-only and never mutated after being recorded. The state
// snapshot is a value copy taken at append time: later mutations of the run
// state never retroactively change an emitted entry.
type LogEntry struct {
	// Step is the zero-based step index.
	Step int `json:"step_index"`

	// Node is the node that executed (or attempted to execute).
	Node string `json:"node_name"`

	// State is a snapshot copy of the run state after this step.
	State State `json:"state_snapshot"`

	// Message is the human-readable message the node returned.
	Message string `json:"message,omitempty"`

	// Error carries the failure message for failed or aborted steps.
	// Empty for successful steps.
	Error string `json:"error,omitempty"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// RunRecord is the mutable record of one run.
//
// # Thread Safety
//
// A RunRecord is owned exclusively by its executor while running; Manager
// guards access with a per-run lock so snapshot readers never observe a
// half-updated record. Once the status is terminal the record is never
// mutated again.
type RunRecord struct {
	ID      uuid.UUID
	GraphID uuid.UUID

	// State is the live run state, threaded through every node call.
	State State

	// CurrentNode is the node executing or about to execute. After a
	// terminal status it is the last node the run reached.
	CurrentNode string

	// StepCount is the number of successfully completed steps.
	StepCount int

	Status RunStatus

	// Logs is the append-only execution log.
	Logs []LogEntry

	// Err is the failure message for FAILED or ABORTED runs.
	Err string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunRecord creates a PENDING record positioned at the graph's start node.
func NewRunRecord(graph *GraphDefinition, initial State) *RunRecord {
	if initial == nil {
		initial = State{}
	}
	return &RunRecord{
		ID:          uuid.New(),
		GraphID:     graph.ID,
		State:       initial,
		CurrentNode: graph.StartNode,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// RunView is a read-only copy of the externally visible fields of a run.
//
// Views are deep-copied from the record: callers may retain and mutate a
// view freely without affecting the run.
type RunView struct {
	RunID       uuid.UUID  `json:"run_id"`
	GraphID     uuid.UUID  `json:"graph_id"`
	Status      RunStatus  `json:"status"`
	CurrentNode string     `json:"current_node,omitempty"`
	StepCount   int        `json:"step_count"`
	Logs        []LogEntry `json:"logs"`
	// FinalState is set only once the run is terminal.
	FinalState State  `json:"final_state,omitempty"`
	Error      string `json:"error,omitempty"`
}

// view builds a RunView from the record. Callers must hold the run lock.
func (r *RunRecord) view() *RunView {
	v := &RunView{
		RunID:       r.ID,
		GraphID:     r.GraphID,
		Status:      r.Status,
		CurrentNode: r.CurrentNode,
		StepCount:   r.StepCount,
		Logs:        cloneLogs(r.Logs),
		Error:       r.Err,
	}
	if r.Status.IsTerminal() {
		v.FinalState = r.State.Clone()
	}
	return v
}

// cloneLogs copies the log slice including each entry's state snapshot,
// so a retained view never aliases the record's append-only log.
func cloneLogs(logs []LogEntry) []LogEntry {
	if logs == nil {
		return nil
	}
	out := make([]LogEntry, len(logs))
	for i, entry := range logs {
		entry.State = entry.State.Clone()
		out[i] = entry
	}
	return out
}

// Clone returns a deep copy of the state over the JSON value domain.
//
// Nested map[string]any and []any values are copied recursively. Values of
// other types (including typed structs a node may have stashed) are copied
// by assignment and therefore shared with the original.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case State:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
