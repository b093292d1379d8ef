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
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentRuns bounds executor goroutines when the caller does
// not configure a limit.
const DefaultMaxConcurrentRuns = 64

// managedRun bundles a run record with its lock, broadcaster and
// cancellation handle.
type managedRun struct {
	mu     sync.RWMutex
	rec    *RunRecord
	bc     *Broadcaster
	cancel context.CancelFunc
}

// Manager creates runs, launches executors as background goroutines,
// tracks their records and exposes inspection and log streaming.
//
// # Description
//
// Each run executes in its own goroutine with no awareness of other runs.
// A weighted semaphore bounds the number of executors driving steps at
// once; runs beyond the limit stay PENDING until a slot frees. Run records
// are retained in memory for the process lifetime (eviction is a known
// future concern, out of scope here).
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	store    *GraphStore
	resolver NodeResolver
	logger   *slog.Logger
	sem      *semaphore.Weighted

	mu   sync.RWMutex
	runs map[uuid.UUID]*managedRun
}

// NewManager creates a run manager.
//
// # Inputs
//
//	store - Graph definitions. Must not be nil.
//	resolver - Node body lookup. Must not be nil.
//	logger - Execution logger. If nil, slog.Default() is used.
//	maxConcurrent - Executor concurrency bound; values < 1 use
//	    DefaultMaxConcurrentRuns.
func NewManager(store *GraphStore, resolver NodeResolver, logger *slog.Logger,
	maxConcurrent int) *Manager {

	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	return &Manager{
		store:    store,
		resolver: resolver,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		runs:     make(map[uuid.UUID]*managedRun),
	}
}

// Start creates a run for the given graph and schedules its executor.
//
// # Description
//
// Returns the run id immediately; the executor runs as an independent
// background goroutine detached from the caller's context. The run is
// PENDING until an executor slot is acquired, then RUNNING.
//
// # Outputs
//
//   - uuid.UUID: The new run id.
//   - error: ErrGraphNotFound (wrapped) when the graph id is unknown.
func (m *Manager) Start(graphID uuid.UUID, initial State) (uuid.UUID, error) {
	graph, err := m.store.Get(graphID)
	if err != nil {
		return uuid.Nil, err
	}

	rec := NewRunRecord(graph, initial)
	runCtx, cancel := context.WithCancel(context.Background())

	mr := &managedRun{
		rec:    rec,
		bc:     NewBroadcaster(),
		cancel: cancel,
	}

	m.mu.Lock()
	m.runs[rec.ID] = mr
	m.mu.Unlock()

	exec := NewExecutor(graph, m.resolver, rec, &mr.mu, mr.bc, m.logger)

	go func() {
		defer cancel()

		if err := m.sem.Acquire(runCtx, 1); err != nil {
			// Cancelled while queued: finish the run without executing.
			mr.mu.Lock()
			mr.rec.Status = StatusCancelled
			mr.rec.Err = "run cancelled"
			view := mr.rec.view()
			mr.mu.Unlock()
			mr.bc.Publish(Event{Type: EventCompletion, Run: view})
			return
		}
		defer m.sem.Release(1)

		exec.Run(runCtx)
	}()

	m.logger.Info("run scheduled",
		slog.String("run_id", rec.ID.String()),
		slog.String("graph_id", graphID.String()),
	)
	return rec.ID, nil
}

// Snapshot returns a read-only deep copy of the run's visible state.
//
// Returns ErrRunNotFound (wrapped) when the id is unknown.
func (m *Manager) Snapshot(runID uuid.UUID) (*RunView, error) {
	mr, err := m.get(runID)
	if err != nil {
		return nil, err
	}

	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.rec.view(), nil
}

// Subscribe attaches a new log stream subscriber to the run.
//
// The subscription replays the backlog, then live entries, then exactly
// one completion event. Returns ErrRunNotFound (wrapped) when the id is
// unknown.
func (m *Manager) Subscribe(runID uuid.UUID) (*Subscription, error) {
	mr, err := m.get(runID)
	if err != nil {
		return nil, err
	}
	return mr.bc.Attach(), nil
}

// Cancel requests cancellation of a run.
//
// The executor honors cancellation at the top of its step loop; a node
// body already in flight settles first. Returns ErrRunNotFound when the
// id is unknown and ErrRunFinished when the run is already terminal.
func (m *Manager) Cancel(runID uuid.UUID) error {
	mr, err := m.get(runID)
	if err != nil {
		return err
	}

	mr.mu.RLock()
	terminal := mr.rec.Status.IsTerminal()
	mr.mu.RUnlock()
	if terminal {
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}

	mr.cancel()
	m.logger.Info("run cancellation requested", slog.String("run_id", runID.String()))
	return nil
}

// get looks up a managed run.
func (m *Manager) get(runID uuid.UUID) (*managedRun, error) {
	m.mu.RLock()
	mr, ok := m.runs[runID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return mr, nil
}
