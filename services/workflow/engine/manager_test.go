// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager registers a three node chain graph and returns the
// manager plus the graph id.
func newTestManager(t *testing.T, resolver NodeResolver) (*Manager, uuid.UUID) {
	t.Helper()

	store := NewGraphStore()
	id, err := store.Register(&GraphDefinition{
		Nodes: []NodeSpec{{Name: "first"}, {Name: "second"}, {Name: "last"}},
		Edges: map[string]EdgeTarget{
			"first":  {Node: "second"},
			"second": {Node: "last"},
		},
		StartNode: "first",
	})
	require.NoError(t, err)

	return NewManager(store, resolver, nil, 4), id
}

// chainResolver runs every node as a step counter.
func chainResolver() testResolver {
	step := func(_ context.Context, state State, _ map[string]any) (State, string, string, error) {
		n, _ := state["steps"].(float64)
		state["steps"] = n + 1
		return state, "", "stepped", nil
	}
	return testResolver{"first": step, "second": step, "last": step}
}

// awaitCompletion drains a subscription until its completion event.
func awaitCompletion(t *testing.T, sub *Subscription) *RunView {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "stream closed before completion event")
			if ev.Type == EventCompletion {
				return ev.Run
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion event")
		}
	}
}

func TestManager_StartUnknownGraph(t *testing.T) {
	m, _ := newTestManager(t, chainResolver())

	_, err := m.Start(uuid.New(), nil)
	assert.True(t, errors.Is(err, ErrGraphNotFound))
}

func TestManager_RunToCompletionViaSubscription(t *testing.T) {
	m, graphID := newTestManager(t, chainResolver())

	runID, err := m.Start(graphID, State{"steps": 0.0})
	require.NoError(t, err)

	sub, err := m.Subscribe(runID)
	require.NoError(t, err)
	defer sub.Close()

	view := awaitCompletion(t, sub)
	assert.Equal(t, runID, view.RunID)
	assert.Equal(t, graphID, view.GraphID)
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t, 3, view.StepCount)
	assert.Equal(t, 3.0, view.FinalState["steps"])

	require.Len(t, view.Logs, 3)
	for i, entry := range view.Logs {
		assert.Equal(t, i, entry.Step)
	}
}

func TestManager_SnapshotAfterCompletion(t *testing.T) {
	m, graphID := newTestManager(t, chainResolver())

	runID, err := m.Start(graphID, nil)
	require.NoError(t, err)

	sub, err := m.Subscribe(runID)
	require.NoError(t, err)
	awaitCompletion(t, sub)
	sub.Close()

	view, err := m.Snapshot(runID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t, "last", view.CurrentNode)
	assert.Len(t, view.Logs, 3)
	assert.NotNil(t, view.FinalState)
}

func TestManager_SnapshotUnknownRun(t *testing.T) {
	m, _ := newTestManager(t, chainResolver())

	_, err := m.Snapshot(uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestManager_SubscribeUnknownRun(t *testing.T) {
	m, _ := newTestManager(t, chainResolver())

	_, err := m.Subscribe(uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestManager_CancelRunningRun(t *testing.T) {
	store := NewGraphStore()
	graphID, err := store.Register(&GraphDefinition{
		Nodes:         []NodeSpec{{Name: "spin"}},
		Edges:         map[string]EdgeTarget{"spin": {Node: "spin"}},
		StartNode:     "spin",
		MaxIterations: 100000,
	})
	require.NoError(t, err)

	started := make(chan struct{})
	var once bool
	resolver := testResolver{
		"spin": func(_ context.Context, state State, _ map[string]any) (State, string, string, error) {
			if !once {
				once = true
				close(started)
			}
			time.Sleep(time.Millisecond)
			return state, "", "spinning", nil
		},
	}
	m := NewManager(store, resolver, nil, 4)

	runID, err := m.Start(graphID, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	sub, err := m.Subscribe(runID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Cancel(runID))

	view := awaitCompletion(t, sub)
	assert.Equal(t, StatusCancelled, view.Status)

	// A second cancel races with the executor finishing; both outcomes
	// are acceptable, but once terminal it must be ErrRunFinished.
	err = m.Cancel(runID)
	if err != nil {
		assert.True(t, errors.Is(err, ErrRunFinished))
	}
}

func TestManager_CancelUnknownRun(t *testing.T) {
	m, _ := newTestManager(t, chainResolver())

	err := m.Cancel(uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestManager_CancelFinishedRun(t *testing.T) {
	m, graphID := newTestManager(t, chainResolver())

	runID, err := m.Start(graphID, nil)
	require.NoError(t, err)

	sub, err := m.Subscribe(runID)
	require.NoError(t, err)
	awaitCompletion(t, sub)
	sub.Close()

	err = m.Cancel(runID)
	assert.True(t, errors.Is(err, ErrRunFinished))
}

func TestManager_ConcurrencyLimitQueuesRuns(t *testing.T) {
	store := NewGraphStore()
	graphID, err := store.Register(&GraphDefinition{
		Nodes:     []NodeSpec{{Name: "hold"}},
		StartNode: "hold",
	})
	require.NoError(t, err)

	release := make(chan struct{})
	resolver := testResolver{
		"hold": func(ctx context.Context, state State, _ map[string]any) (State, string, string, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return state, "", "held", nil
		},
	}
	m := NewManager(store, resolver, nil, 1)

	first, err := m.Start(graphID, nil)
	require.NoError(t, err)
	second, err := m.Start(graphID, nil)
	require.NoError(t, err)

	// The second run waits on the executor slot and stays PENDING.
	assert.Eventually(t, func() bool {
		view, err := m.Snapshot(first)
		return err == nil && view.Status == StatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	view, err := m.Snapshot(second)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, view.Status)

	close(release)

	for _, id := range []uuid.UUID{first, second} {
		assert.Eventually(t, func() bool {
			view, err := m.Snapshot(id)
			return err == nil && view.Status == StatusCompleted
		}, 5*time.Second, 5*time.Millisecond)
	}
}

func TestManager_CancelWhileQueued(t *testing.T) {
	store := NewGraphStore()
	graphID, err := store.Register(&GraphDefinition{
		Nodes:     []NodeSpec{{Name: "hold"}},
		StartNode: "hold",
	})
	require.NoError(t, err)

	release := make(chan struct{})
	resolver := testResolver{
		"hold": func(ctx context.Context, state State, _ map[string]any) (State, string, string, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return state, "", "held", nil
		},
	}
	m := NewManager(store, resolver, nil, 1)

	first, err := m.Start(graphID, nil)
	require.NoError(t, err)
	queued, err := m.Start(graphID, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		view, err := m.Snapshot(first)
		return err == nil && view.Status == StatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	sub, err := m.Subscribe(queued)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Cancel(queued))

	view := awaitCompletion(t, sub)
	assert.Equal(t, StatusCancelled, view.Status)
	assert.Equal(t, 0, view.StepCount)

	close(release)
}
