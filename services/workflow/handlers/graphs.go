// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers for the workflow API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// CreateGraph registers a new graph definition.
//
// # Description
//
// Binds and validates the request payload, converts it to an engine
// definition and registers it. Field-level validation failures return
// 422; structural graph violations return 400 with the offending field
// in the detail.
func CreateGraph(store *engine.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GraphCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		def, err := req.ToGraphDefinition()
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		id, err := store.Register(def)
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		slog.Info("graph registered",
			"graph_id", id.String(),
			"nodes", len(def.Nodes),
			"start_node", def.StartNode)
		c.JSON(http.StatusCreated, datatypes.GraphCreateResponse{GraphID: id.String()})
	}
}

// GetGraph returns a registered graph definition.
func GetGraph(store *engine.GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("graphId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: "invalid graph id"})
			return
		}

		def, err := store.Get(id)
		if err != nil {
			if errors.Is(err, engine.ErrGraphNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Graph not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}

		c.JSON(http.StatusOK, datatypes.NewGraphView(def))
	}
}
