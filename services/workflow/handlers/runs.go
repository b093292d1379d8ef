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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
	"github.com/AleutianAI/AleutianFlow/services/workflow/observability"
)

// StartRun creates a run and schedules it for background execution.
//
// Returns 202 with the run id; execution proceeds regardless of whether
// the caller ever looks at the run again.
func StartRun(manager *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		graphID, err := req.GraphUUID()
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		runID, err := manager.Start(graphID, engine.State(req.InitialState))
		if err != nil {
			if errors.Is(err, engine.ErrGraphNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Graph not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RunsStartedTotal.Inc()
		}
		c.JSON(http.StatusAccepted, datatypes.RunCreateResponse{RunID: runID.String()})
	}
}

// GetRun returns the current snapshot of a run.
func GetRun(manager *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := uuid.Parse(c.Param("runId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: "invalid run id"})
			return
		}

		view, err := manager.Snapshot(runID)
		if err != nil {
			if errors.Is(err, engine.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

// CancelRun requests cancellation of an in-flight run.
//
// A run that already reached a terminal status returns 409; the stored
// outcome never changes after the fact.
func CancelRun(manager *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := uuid.Parse(c.Param("runId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: "invalid run id"})
			return
		}

		switch err := manager.Cancel(runID); {
		case err == nil:
			if m := observability.DefaultMetrics; m != nil {
				m.RunsCancelledTotal.Inc()
			}
			slog.Info("run cancellation accepted", "run_id", runID.String())
			c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "run_id": runID.String()})
		case errors.Is(err, engine.ErrRunNotFound):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Run not found"})
		case errors.Is(err, engine.ErrRunFinished):
			c.JSON(http.StatusConflict, datatypes.ErrorResponse{Detail: "Run already finished"})
		default:
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: err.Error()})
		}
	}
}
