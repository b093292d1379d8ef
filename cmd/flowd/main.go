// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowd starts the AleutianFlow workflow HTTP server.
//
// This is the main entry point for the containerized workflow service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - WORKFLOW_PORT: HTTP server port (default: 12310)
//   - WORKFLOW_GRAPH_DIR: Directory of graph definition files (optional)
//   - WORKFLOW_MAX_CONCURRENT_RUNS: Concurrent run limit (default: 64)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - GIN_MODE: Gin framework mode - debug, release, test (default: release)
//
// # Usage
//
//	# Build
//	go build -o flowd ./cmd/flowd
//
//	# Run
//	./flowd
//
//	# Or with a graph directory
//	WORKFLOW_GRAPH_DIR=./graphs ./flowd
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianFlow/services/workflow"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := workflow.Config{
		Port:              getEnvInt("WORKFLOW_PORT", 12310),
		GraphDir:          os.Getenv("WORKFLOW_GRAPH_DIR"),
		MaxConcurrentRuns: getEnvInt("WORKFLOW_MAX_CONCURRENT_RUNS", 0),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:           getEnvString("GIN_MODE", "release"),
	}

	slog.Info("Starting workflow service",
		"port", cfg.Port,
		"graph_dir", cfg.GraphDir,
	)

	svc, err := workflow.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create workflow service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Workflow service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
