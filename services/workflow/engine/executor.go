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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutianflow.engine")
	meter  = otel.Meter("aleutianflow.engine")
)

// Engine metrics (initialized lazily on first run).
var (
	metricsOnce sync.Once
	stepLatency metric.Float64Histogram
	runsTotal   metric.Int64Counter
	activeRuns  metric.Int64UpDownCounter
)

// initMetrics lazily initializes engine metrics.
// Logs failures but continues execution (observability degrades gracefully).
func initMetrics(logger *slog.Logger) {
	metricsOnce.Do(func() {
		var initErrors []string

		var err error
		stepLatency, err = meter.Float64Histogram("workflow_step_duration_seconds",
			metric.WithDescription("Time spent executing each workflow node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_latency: "+err.Error())
		}

		runsTotal, err = meter.Int64Counter("workflow_runs_total",
			metric.WithDescription("Number of finished runs by terminal status"),
		)
		if err != nil {
			initErrors = append(initErrors, "runs_total: "+err.Error())
		}

		activeRuns, err = meter.Int64UpDownCounter("workflow_active_runs",
			metric.WithDescription("Number of currently executing runs"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_runs: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// NodeFunc is the contract every node body satisfies.
//
// # Description
//
// A node receives a snapshot of the run state and its declared
// configuration, and returns the replacement state, a branch key (empty
// when the node does not branch), and a human-readable message for the
// run log. A non-nil error fails the run; there is no retry.
//
// The context is the run's context: long node bodies should honor it,
// though the engine itself only checks cancellation between steps.
type NodeFunc func(ctx context.Context, state State, config map[string]any) (State, string, string, error)

// NodeResolver maps a NodeSpec to its body. Implemented by nodes.Registry.
//
// The engine treats resolution failure as a run failure, never a crash:
// graph structure was validated at registration, but body registration is
// a separate concern owned by the caller.
type NodeResolver interface {
	Resolve(spec *NodeSpec) (NodeFunc, error)
}

// Executor drives a single run from PENDING to a terminal status.
//
// # Description
//
// Steps execute strictly sequentially; the executor is the single writer
// over its RunRecord, taking the run lock only for the brief record
// mutations so snapshot readers stay consistent. Node invocation is the
// only suspension point. Cancellation is honored at the top of each step.
//
// # Thread Safety
//
// Run must be called exactly once, from one goroutine. Concurrent readers
// go through Manager.Snapshot / Manager.Subscribe.
type Executor struct {
	graph    *GraphDefinition
	resolver NodeResolver
	logger   *slog.Logger

	rec *RunRecord
	mu  *sync.RWMutex
	bc  *Broadcaster
}

// NewExecutor creates an executor bound to one run record.
//
// # Inputs
//
//	graph - The validated definition to execute. Must not be nil.
//	resolver - Node body lookup. Must not be nil.
//	rec - The run record, positioned at the start node.
//	mu - The lock guarding rec, shared with snapshot readers.
//	bc - The run's broadcaster.
//	logger - Execution logger. If nil, slog.Default() is used.
func NewExecutor(graph *GraphDefinition, resolver NodeResolver, rec *RunRecord,
	mu *sync.RWMutex, bc *Broadcaster, logger *slog.Logger) *Executor {

	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		graph:    graph,
		resolver: resolver,
		logger:   logger,
		rec:      rec,
		mu:       mu,
		bc:       bc,
	}
}

// Run executes the state machine until a terminal status is reached.
//
// Run never returns an error: every per-run failure is contained in the
// run's status and log, and the completion event is always published.
func (e *Executor) Run(ctx context.Context) {
	initMetrics(e.logger)

	ctx, span := tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("workflow.graph_id", e.graph.ID.String()),
			attribute.String("workflow.run_id", e.rec.ID.String()),
		),
	)
	defer span.End()

	if activeRuns != nil {
		activeRuns.Add(ctx, 1)
		defer activeRuns.Add(ctx, -1)
	}

	logger := e.logger.With(
		slog.String("run_id", e.rec.ID.String()),
		slog.String("graph_id", e.graph.ID.String()),
	)

	e.mu.Lock()
	e.rec.Status = StatusRunning
	e.rec.StartedAt = time.Now()
	e.mu.Unlock()

	logger.Info("run started",
		slog.String("start_node", e.graph.StartNode),
		slog.Int("max_iterations", e.graph.MaxIterations),
	)

	for {
		// Cancellation is honored only between steps: a node body that
		// already started always settles before the run stops.
		if ctx.Err() != nil {
			e.finish(ctx, span, logger, StatusCancelled, "run cancelled")
			return
		}

		e.mu.RLock()
		current := e.rec.CurrentNode
		step := e.rec.StepCount
		state := e.rec.State
		e.mu.RUnlock()

		if step >= e.graph.MaxIterations {
			e.appendEntry(LogEntry{
				Step:    step,
				Node:    current,
				State:   state.Clone(),
				Message: fmt.Sprintf("stopped after %d steps", step),
				Error:   ErrIterationBudget.Error(),
			})
			e.finish(ctx, span, logger, StatusAborted, ErrIterationBudget.Error())
			return
		}

		spec, ok := e.graph.Node(current)
		if !ok {
			// The graph was validated at registration, so this is an
			// internal invariant violation. Fail the run, not the process.
			msg := fmt.Sprintf("internal error: node %q is not declared", current)
			e.appendEntry(LogEntry{
				Step:  step,
				Node:  current,
				State: state.Clone(),
				Error: msg,
			})
			e.finish(ctx, span, logger, StatusFailed, msg)
			return
		}

		fn, err := e.resolver.Resolve(spec)
		if err != nil {
			msg := fmt.Sprintf("no body for node %q (type %q): %v", spec.Name, spec.Type, err)
			e.appendEntry(LogEntry{
				Step:  step,
				Node:  current,
				State: state.Clone(),
				Error: msg,
			})
			e.finish(ctx, span, logger, StatusFailed, msg)
			return
		}

		newState, branchKey, message, err := e.invoke(ctx, current, fn, state.Clone(), spec.Config)
		if err != nil {
			e.appendEntry(LogEntry{
				Step:    step,
				Node:    current,
				State:   state.Clone(),
				Message: err.Error(),
				Error:   err.Error(),
			})
			logger.Warn("node failed",
				slog.String("node", current),
				slog.Int("step", step),
				slog.String("error", err.Error()),
			)
			e.finish(ctx, span, logger, StatusFailed, err.Error())
			return
		}
		if newState == nil {
			newState = State{}
		}

		entry := LogEntry{
			Step:      step,
			Node:      current,
			State:     newState.Clone(),
			Message:   message,
			Timestamp: time.Now(),
		}

		// State replacement, step count, and the log entry move together
		// so snapshot readers never see the count ahead of the log.
		e.mu.Lock()
		e.rec.State = newState
		e.rec.StepCount = step + 1
		e.rec.Logs = append(e.rec.Logs, entry)
		e.mu.Unlock()

		e.bc.Publish(Event{Type: EventLog, Entry: &entry})

		logger.Debug("step completed",
			slog.String("node", current),
			slog.Int("step", step),
			slog.String("branch_key", branchKey),
		)

		next, err := e.graph.Next(current, branchKey)
		if err != nil {
			e.finish(ctx, span, logger, StatusFailed, err.Error())
			return
		}
		if next == "" {
			e.finish(ctx, span, logger, StatusCompleted, "")
			return
		}

		e.mu.Lock()
		e.rec.CurrentNode = next
		e.mu.Unlock()
	}
}

// invoke runs one node body, timing it and containing panics.
//
// A panicking node body fails its run like any other node error; it never
// takes down the process or other runs.
func (e *Executor) invoke(ctx context.Context, node string, fn NodeFunc,
	state State, config map[string]any) (out State, branchKey, message string, err error) {

	ctx, span := tracer.Start(ctx, "engine.Step",
		trace.WithAttributes(attribute.String("workflow.node", node)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node %q panicked: %v", node, r)
		}
		if stepLatency != nil {
			stepLatency.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("node", node)),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return fn(ctx, state, config)
}

// appendEntry timestamps and records one log entry, then broadcasts it.
func (e *Executor) appendEntry(entry LogEntry) {
	entry.Timestamp = time.Now()

	e.mu.Lock()
	e.rec.Logs = append(e.rec.Logs, entry)
	e.mu.Unlock()

	e.bc.Publish(Event{Type: EventLog, Entry: &entry})
}

// finish records the terminal status and publishes the completion marker.
func (e *Executor) finish(ctx context.Context, span trace.Span, logger *slog.Logger,
	status RunStatus, errMsg string) {

	e.mu.Lock()
	e.rec.Status = status
	e.rec.Err = errMsg
	e.rec.FinishedAt = time.Now()
	view := e.rec.view()
	e.mu.Unlock()

	if runsTotal != nil {
		runsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", string(status))),
		)
	}

	if status == StatusCompleted {
		span.SetStatus(codes.Ok, "")
		logger.Info("run completed",
			slog.Int("steps", view.StepCount),
			slog.String("final_node", view.CurrentNode),
		)
	} else {
		span.SetStatus(codes.Error, string(status))
		logger.Warn("run finished",
			slog.String("status", string(status)),
			slog.Int("steps", view.StepCount),
			slog.String("error", errMsg),
		)
	}

	e.bc.Publish(Event{Type: EventCompletion, Run: view})
}
