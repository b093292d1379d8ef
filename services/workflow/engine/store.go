// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GraphStore holds immutable graph definitions keyed by id.
//
// # Description
//
// Definitions are validated and frozen at registration. There is no update
// or delete: graphs live for the process lifetime, which matches the
// in-memory scope of the engine (no persistence across restarts).
//
// # Thread Safety
//
// Safe for concurrent registration and lookup.
type GraphStore struct {
	mu     sync.RWMutex
	graphs map[uuid.UUID]*GraphDefinition
}

// NewGraphStore creates an empty store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		graphs: make(map[uuid.UUID]*GraphDefinition),
	}
}

// Register validates the definition, assigns a fresh id and stores it.
//
// # Inputs
//
//   - def: The definition to register. A zero MaxIterations is replaced
//     with DefaultMaxIterations before validation. The store takes
//     ownership; callers must not mutate the definition afterwards.
//
// # Outputs
//
//   - uuid.UUID: The assigned graph id.
//   - error: *ConfigError (wrapping ErrInvalidGraph) when validation fails.
func (s *GraphStore) Register(def *GraphDefinition) (uuid.UUID, error) {
	if def.MaxIterations == 0 {
		def.MaxIterations = DefaultMaxIterations
	}
	if err := def.Validate(); err != nil {
		return uuid.Nil, err
	}

	def.ID = uuid.New()

	s.mu.Lock()
	s.graphs[def.ID] = def
	s.mu.Unlock()

	return def.ID, nil
}

// Get returns the definition for the given id.
//
// Returns ErrGraphNotFound (wrapped) when the id is unknown. The returned
// definition is shared and must be treated as read-only.
func (s *GraphStore) Get(id uuid.UUID) (*GraphDefinition, error) {
	s.mu.RLock()
	def, ok := s.graphs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	return def, nil
}

// Len returns the number of registered graphs.
func (s *GraphStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}
