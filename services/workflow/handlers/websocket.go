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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
	"github.com/AleutianAI/AleutianFlow/services/workflow/observability"
)

// closeGracePeriod bounds the final close handshake after the
// completion event is delivered.
const closeGracePeriod = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// StreamRunLogs streams a run's log events over a websocket.
//
// # Description
//
// The subscription attaches before the connection upgrades, so an
// unknown run id still gets a plain 404 JSON response. After upgrade
// the client receives the full backlog, then live events in order, then
// exactly one completion event, after which the server closes the
// connection. Client messages are discarded; a client disconnect tears
// the stream down early without affecting the run.
func StreamRunLogs(manager *engine.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := uuid.Parse(c.Param("runId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Detail: "invalid run id"})
			return
		}

		sub, err := manager.Subscribe(runID)
		if err != nil {
			if errors.Is(err, engine.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Detail: "Run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: err.Error()})
			return
		}
		defer sub.Close()

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "run_id", runID.String(), "error", err)
			return
		}
		defer ws.Close()

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()
		}
		slog.Info("log stream client connected", "run_id", runID.String())

		// Reader goroutine: the client never speaks, but reading is how
		// gorilla surfaces close frames and dead connections.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-clientGone:
				slog.Info("log stream client disconnected", "run_id", runID.String())
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := sendJSON(ws, ev); err != nil {
					return
				}
				if metrics != nil {
					metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
				}
				if ev.Type == engine.EventCompletion {
					closeStream(ws, clientGone)
					return
				}
			}
		}
	}
}

// closeStream performs the server-side close handshake after the
// completion event.
func closeStream(ws *websocket.Conn, clientGone <-chan struct{}) {
	deadline := time.Now().Add(closeGracePeriod)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return
	}

	// Wait briefly for the client's close frame so the connection does
	// not reset under it.
	select {
	case <-clientGone:
	case <-time.After(closeGracePeriod):
	}
}
