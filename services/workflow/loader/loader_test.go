// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

const yamlGraph = `
nodes:
  - name: gate
    type: check
  - name: work
  - name: done
edges:
  - from_node: gate
    to_node:
      retry: work
      pass: done
  - from_node: work
    to_node: gate
start_node: gate
max_iterations: 10
`

const jsonGraph = `{
  "nodes": [{"name": "only"}],
  "start_node": "only"
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "review.yaml", yamlGraph)
	writeFile(t, dir, "single.json", jsonGraph)
	writeFile(t, dir, "notes.txt", "not a graph")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	store := engine.NewGraphStore()
	l := New(store, nil)

	loaded, err := l.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}
	if store.Len() != 2 {
		t.Errorf("store.Len() = %d, want 2", store.Len())
	}
}

func TestLoadDir_SkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", jsonGraph)
	writeFile(t, dir, "broken.yaml", "nodes: [unclosed")
	// Parses fine but fails validation: start node is not declared.
	writeFile(t, dir, "invalid.json", `{"nodes":[{"name":"a"}],"start_node":"ghost"}`)

	store := engine.NewGraphStore()
	l := New(store, nil)

	loaded, err := l.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1 (bad files skipped)", loaded)
	}
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	store := engine.NewGraphStore()
	l := New(store, nil)

	if _, err := l.LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatch_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := engine.NewGraphStore()
	l := New(store, nil)

	if err := l.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Stop()

	writeFile(t, dir, "late.yaml", yamlGraph)

	deadline := time.Now().Add(5 * time.Second)
	for store.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered the new file")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store := engine.NewGraphStore()
	l := New(store, nil)

	if err := l.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Stop()

	writeFile(t, dir, "readme.md", "hello")

	time.Sleep(100 * time.Millisecond)
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestStop_Idempotent(t *testing.T) {
	l := New(engine.NewGraphStore(), nil)

	// Stop without Watch, then again.
	l.Stop()
	l.Stop()
}

func TestIsDefinitionFile(t *testing.T) {
	cases := map[string]bool{
		"graph.yaml":     true,
		"graph.yml":      true,
		"graph.json":     true,
		"graph.txt":      false,
		"graph":          false,
		"dir/graph.yaml": true,
	}
	for path, want := range cases {
		if got := isDefinitionFile(path); got != want {
			t.Errorf("isDefinitionFile(%q) = %v, want %v", path, got, want)
		}
	}
}
