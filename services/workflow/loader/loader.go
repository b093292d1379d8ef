// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loader registers graph definitions from files on disk.
//
// # Description
//
// Definition files are YAML or JSON documents in the wire format of
// POST /v1/graphs (nodes, edges, start_node, max_iterations). The
// loader reads every *.yaml, *.yml and *.json file in a directory at
// startup; an optional watcher picks up files created or rewritten
// while the service runs. A malformed file is logged and skipped, never
// fatal: a bad definition on disk must not take the service down.
package loader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

// Loader reads graph definition files and registers them.
//
// # Thread Safety
//
// Safe for concurrent use. LoadDir and the watcher goroutine may both
// register files at the same time.
type Loader struct {
	store  *engine.GraphStore
	logger *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a loader that registers into the given store.
func New(store *engine.GraphStore, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:  store,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// LoadDir registers every definition file in dir.
//
// # Outputs
//
//   - int: Number of graphs registered.
//   - error: Non-nil only when the directory itself cannot be read.
//     Individual file failures are logged and skipped.
func (l *Loader) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read graph directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		if l.loadFile(filepath.Join(dir, entry.Name())) {
			loaded++
		}
	}

	l.logger.Info("graph directory loaded", "dir", dir, "graphs", loaded)
	return loaded, nil
}

// Watch registers definition files created or rewritten in dir until
// Stop is called.
//
// # Description
//
// Only create and write events are acted on. Removing a file does not
// unregister its graph: runs may still reference it, and graph records
// are immutable once registered.
func (l *Loader) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.watcher = watcher

	go l.watchLoop()

	l.logger.Info("watching graph directory", "dir", dir)
	return nil
}

// Stop shuts the watcher down. Safe to call more than once, and safe
// when Watch was never started.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.watcher != nil {
			l.watcher.Close()
		}
	})
}

func (l *Loader) watchLoop() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			l.loadFile(event.Name)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("graph watcher error", "error", err)
		}
	}
}

// loadFile parses and registers a single definition file. Returns true
// on success.
func (l *Loader) loadFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("skipping unreadable graph file", "path", path, "error", err)
		return false
	}

	var req datatypes.GraphCreateRequest
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		l.logger.Warn("skipping malformed graph file", "path", path, "error", err)
		return false
	}

	def, err := req.ToGraphDefinition()
	if err != nil {
		l.logger.Warn("skipping invalid graph file", "path", path, "error", err)
		return false
	}

	id, err := l.store.Register(def)
	if err != nil {
		l.logger.Warn("skipping invalid graph file", "path", path, "error", err)
		return false
	}

	l.logger.Info("graph registered from file",
		"path", path,
		"graph_id", id.String(),
		"start_node", def.StartNode)
	return true
}

// isDefinitionFile reports whether a path looks like a graph definition.
func isDefinitionFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
