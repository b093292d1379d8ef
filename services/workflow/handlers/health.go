// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy" whenever the process answers.
	Status string `json:"status"`

	// Graphs is the number of registered graph definitions.
	Graphs int `json:"graphs"`
}

// HealthCheck handles GET /health. Always returns 200 if running.
func HealthCheck(store *engine.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status: "healthy",
			Graphs: store.Len(),
		})
	}
}
