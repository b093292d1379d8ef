// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// Client talks to a flowd server.
//
// # Thread Safety
//
// Safe for concurrent use; it holds no mutable state beyond the
// shared http.Client.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterGraph posts a graph definition and returns its id.
func (c *Client) RegisterGraph(ctx context.Context, req datatypes.GraphCreateRequest) (string, error) {
	var resp datatypes.GraphCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/graphs", req, &resp); err != nil {
		return "", err
	}
	return resp.GraphID, nil
}

// GetGraph fetches a registered graph definition.
func (c *Client) GetGraph(ctx context.Context, graphID string) (*datatypes.GraphView, error) {
	var view datatypes.GraphView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/graphs/"+graphID, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// StartRun starts a run of the given graph and returns the run id.
func (c *Client) StartRun(ctx context.Context, graphID string, initialState map[string]any) (string, error) {
	req := datatypes.RunCreateRequest{GraphID: graphID, InitialState: initialState}
	var resp datatypes.RunCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs", req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// GetRun fetches a run snapshot.
func (c *Client) GetRun(ctx context.Context, runID string) (*engine.RunView, error) {
	var view engine.RunView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+runID, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CancelRun requests cancellation of a run.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/runs/"+runID, nil, nil)
}

// WatchRun streams run events over the websocket endpoint, invoking
// handle for each one. It returns once the completion event arrives,
// the server closes the stream, or the context is cancelled.
func (c *Client) WatchRun(ctx context.Context, runID string, handle func(engine.Event)) error {
	wsURL, err := c.websocketURL("/v1/runs/" + runID + "/ws")
	if err != nil {
		return err
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("run %s not found", runID)
		}
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer ws.Close()

	// Unblock the read loop on context cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		var ev engine.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event stream: %w", err)
		}
		handle(ev)
		if ev.Type == engine.EventCompletion {
			return nil
		}
	}
}

// doJSON issues one request and decodes the response into out. Error
// replies are unwrapped from the server's detail envelope.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp datatypes.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// websocketURL rewrites the base URL scheme for websocket dialing.
func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
