// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the workflow service.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFlow/services/workflow/observability"
)

// RequestLogger logs each request with structured fields and feeds the
// request counter.
//
// # Description
//
// Emits one slog line per request after the handler chain completes,
// carrying method, route, status and latency. The Prometheus request
// counter is labeled with the matched route template (not the raw URL)
// so run and graph ids do not explode cardinality.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
		}

		logger := slog.Info
		if status >= 500 {
			logger = slog.Error
		} else if status >= 400 {
			logger = slog.Warn
		}
		logger("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// statusClass buckets a status code into 2xx/3xx/4xx/5xx.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
