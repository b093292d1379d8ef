// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow provides the workflow engine service for AleutianFlow.
//
// This package contains the main service type that coordinates all
// components: the in-memory graph store, the run manager, node and tool
// registries, HTTP routing, the definition file loader and observability
// infrastructure.
//
// # Usage
//
//	cfg := workflow.Config{Port: 12310}
//	svc, err := workflow.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
	"github.com/AleutianAI/AleutianFlow/services/workflow/loader"
	"github.com/AleutianAI/AleutianFlow/services/workflow/nodes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/observability"
	"github.com/AleutianAI/AleutianFlow/services/workflow/routes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the workflow service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds workflow service configuration options.
//
// All fields are optional with defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// GraphDir is a directory of graph definition files loaded at
	// startup and watched for new files. Empty disables the loader.
	GraphDir string

	// MaxConcurrentRuns bounds simultaneously executing runs.
	// Default: engine.DefaultMaxConcurrentRuns
	MaxConcurrentRuns int

	// OTelEndpoint is the OpenTelemetry collector endpoint. If empty,
	// spans go to a stdout exporter instead of OTLP.
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Default: true
	EnableMetrics *bool

	// RegisterDemoGraph registers the built-in code review graph at
	// startup and logs its id. Default: true when GraphDir is empty.
	RegisterDemoGraph *bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *engine.GraphStore
	manager       *engine.Manager
	loader        *loader.Loader
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new workflow Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and the metric pipeline
//  3. Initializes Prometheus metrics
//  4. Builds the graph store, node registry and run manager
//  5. Loads graph definition files and starts the directory watcher
//  6. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run workflow service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.tracerCleanup = cleanup

	if *s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for the workflow API")
	}

	s.store = engine.NewGraphStore()
	registry := nodes.DefaultRegistry(nil)
	s.manager = engine.NewManager(s.store, registry, slog.Default(), s.config.MaxConcurrentRuns)

	if s.config.GraphDir != "" {
		s.loader = loader.New(s.store, slog.Default())
		if _, err := s.loader.LoadDir(s.config.GraphDir); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to load graph directory: %w", err)
		}
		if err := s.loader.Watch(s.config.GraphDir); err != nil {
			// Watcher loss degrades to startup-only loading.
			slog.Warn("graph directory watcher unavailable", "error", err)
		}
	}

	if *s.config.RegisterDemoGraph {
		id, err := s.store.Register(nodes.ReviewGraph(0))
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to register built-in review graph: %w", err)
		}
		slog.Info("registered built-in code review graph", "graph_id", id.String())
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting workflow server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.MaxConcurrentRuns == 0 {
		cfg.MaxConcurrentRuns = engine.DefaultMaxConcurrentRuns
	}
	if cfg.EnableMetrics == nil {
		enabled := true
		cfg.EnableMetrics = &enabled
	}
	if cfg.RegisterDemoGraph == nil {
		demo := cfg.GraphDir == ""
		cfg.RegisterDemoGraph = &demo
	}
	return cfg
}

// initTelemetry initializes tracing and the metric pipeline.
//
// # Description
//
// Spans go to the configured OTLP collector, or to a stdout exporter
// when no endpoint is set (local development). Engine metrics flow
// through an otel prometheus exporter into the same default registry
// the API metrics use, so /metrics serves both.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if telemetry setup fails
func (s *service) initTelemetry() (func(context.Context), error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("workflow-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var traceExporter sdktrace.SpanExporter
	if s.config.OTelEndpoint != "" {
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	} else {
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		slog.Info("No OTel endpoint configured, tracing to stdout")
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	promExporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter))
	otel.SetMeterProvider(meterProvider)

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace provider", "error", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
	}

	return cleanup, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("workflow-service"))

	routes.SetupRoutes(s.router, s.store, s.manager, *s.config.EnableMetrics)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.loader != nil {
		s.loader.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
