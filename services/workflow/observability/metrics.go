// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the workflow API.
//
// # Description
//
// This package covers the transport layer: request counters, run
// lifecycle counters and websocket stream gauges. Step-level execution
// metrics are emitted by the engine through OpenTelemetry and reach the
// same /metrics endpoint via the otel prometheus exporter.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "aleutianflow"

// Subsystem for API transport metrics.
const apiSubsystem = "api"

// APIMetrics holds the Prometheus metrics for the workflow API surface.
//
// # Fields
//
//   - RequestsTotal: Counter of API requests by endpoint and status
//   - RunsStartedTotal: Counter of runs accepted for execution
//   - RunsCancelledTotal: Counter of cancel requests that landed
//   - ActiveStreams: Gauge of live websocket log streams
//   - StreamEventsTotal: Counter of events written to websocket clients
type APIMetrics struct {
	// RequestsTotal counts API requests by endpoint and status code class.
	// Labels: endpoint (graph_create, run_start, ...), status (2xx, 4xx, 5xx)
	RequestsTotal *prometheus.CounterVec

	// RunsStartedTotal counts runs accepted through POST /v1/runs.
	RunsStartedTotal prometheus.Counter

	// RunsCancelledTotal counts accepted DELETE /v1/runs/:runId requests.
	RunsCancelledTotal prometheus.Counter

	// ActiveStreams tracks currently connected websocket log streams.
	ActiveStreams prometheus.Gauge

	// StreamEventsTotal counts events delivered to websocket clients.
	// Labels: type (log, completion)
	StreamEventsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of APIMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *APIMetrics

var initOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Safe to call more than once; later calls return the instance created
// by the first.
//
// # Outputs
//
//   - *APIMetrics: The initialized metrics instance.
func InitMetrics() *APIMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &APIMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: apiSubsystem,
					Name:      "requests_total",
					Help:      "Total API requests by endpoint and status class",
				},
				[]string{"endpoint", "status"},
			),

			RunsStartedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: apiSubsystem,
					Name:      "runs_started_total",
					Help:      "Total workflow runs accepted for execution",
				},
			),

			RunsCancelledTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: apiSubsystem,
					Name:      "runs_cancelled_total",
					Help:      "Total accepted run cancellation requests",
				},
			),

			ActiveStreams: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: apiSubsystem,
					Name:      "active_streams",
					Help:      "Number of currently connected websocket log streams",
				},
			),

			StreamEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: apiSubsystem,
					Name:      "stream_events_total",
					Help:      "Total events delivered to websocket clients by type",
				},
				[]string{"type"},
			),
		}
	})

	return DefaultMetrics
}
