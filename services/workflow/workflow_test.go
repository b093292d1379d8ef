// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
	"github.com/AleutianAI/AleutianFlow/services/workflow/handlers"
)

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	if cfg.Port != 12310 {
		t.Errorf("Port = %d, want 12310", cfg.Port)
	}
	if cfg.MaxConcurrentRuns != engine.DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrentRuns = %d", cfg.MaxConcurrentRuns)
	}
	if cfg.EnableMetrics == nil || !*cfg.EnableMetrics {
		t.Error("EnableMetrics should default to true")
	}
	if cfg.RegisterDemoGraph == nil || !*cfg.RegisterDemoGraph {
		t.Error("RegisterDemoGraph should default to true without a graph dir")
	}

	cfg = applyConfigDefaults(Config{GraphDir: "/tmp/graphs"})
	if *cfg.RegisterDemoGraph {
		t.Error("RegisterDemoGraph should default to false with a graph dir")
	}
}

func TestNew_ServesHealthWithDemoGraph(t *testing.T) {
	svc, err := New(Config{GinMode: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var resp handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Graphs != 1 {
		t.Errorf("graphs = %d, want the built-in review graph", resp.Graphs)
	}
}

func TestNew_LoadsGraphDir(t *testing.T) {
	dir := t.TempDir()
	def := `{"nodes":[{"name":"only"}],"start_node":"only"}`
	if err := os.WriteFile(filepath.Join(dir, "g.json"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := New(Config{GinMode: "test", GraphDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)

	var resp handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// Demo graph is off when a graph dir is set, so only the file counts.
	if resp.Graphs != 1 {
		t.Errorf("graphs = %d, want 1", resp.Graphs)
	}
}

func TestNew_MissingGraphDirFails(t *testing.T) {
	_, err := New(Config{
		GinMode:  "test",
		GraphDir: filepath.Join(t.TempDir(), "absent"),
	})
	if err == nil {
		t.Fatal("expected error for missing graph directory")
	}
}
