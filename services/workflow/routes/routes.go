// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
	"github.com/AleutianAI/AleutianFlow/services/workflow/handlers"
	"github.com/AleutianAI/AleutianFlow/services/workflow/middleware"
)

// SetupRoutes registers every route of the workflow API.
//
//	GET    /health                - Health check
//	GET    /metrics               - Prometheus metrics
//	POST   /v1/graphs             - Register a graph definition
//	GET    /v1/graphs/:graphId    - Fetch a graph definition
//	POST   /v1/runs               - Start a run
//	GET    /v1/runs/:runId        - Run snapshot
//	DELETE /v1/runs/:runId        - Cancel a run
//	GET    /v1/runs/:runId/ws     - Websocket log stream
func SetupRoutes(router *gin.Engine, store *engine.GraphStore, manager *engine.Manager,
	enableMetrics bool) {

	router.Use(middleware.RequestLogger())

	router.GET("/health", handlers.HealthCheck(store))
	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		graphs := v1.Group("/graphs")
		{
			graphs.POST("", handlers.CreateGraph(store))
			graphs.GET("/:graphId", handlers.GetGraph(store))
		}

		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.StartRun(manager))
			runs.GET("/:runId", handlers.GetRun(manager))
			runs.DELETE("/:runId", handlers.CancelRun(manager))
			runs.GET("/:runId/ws", handlers.StreamRunLogs(manager))
		}
	}
}
