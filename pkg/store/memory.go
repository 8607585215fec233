// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	keys     map[string]APIKeyRecord
	usage    []UsageRow
	mappings map[string]ModelMapping
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:     make(map[string]APIKeyRecord),
		mappings: make(map[string]ModelMapping),
	}
}

// GetAPIKey implements Store.
func (s *MemoryStore) GetAPIKey(_ context.Context, key string) (*APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	return &cp, nil
}

// PutAPIKey implements Store.
func (s *MemoryStore) PutAPIKey(_ context.Context, rec *APIKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[rec.APIKey] = *rec
	return nil
}

// DeactivateAPIKey implements Store.
func (s *MemoryStore) DeactivateAPIKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[key]
	if !ok {
		return ErrNotFound
	}
	rec.IsActive = false
	s.keys[key] = rec
	return nil
}

// PutUsage implements Store.
func (s *MemoryStore) PutUsage(_ context.Context, row *UsageRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, *row)
	return nil
}

// Usage returns a copy of all recorded usage rows.
func (s *MemoryStore) Usage() []UsageRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UsageRow, len(s.usage))
	copy(out, s.usage)
	return out
}

// GetMapping implements Store.
func (s *MemoryStore) GetMapping(_ context.Context, modelID string) (*ModelMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[modelID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := m
	return &cp, nil
}

// PutMapping implements Store.
func (s *MemoryStore) PutMapping(_ context.Context, m *ModelMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.ModelID] = *m
	return nil
}

// ListMappings implements Store.
func (s *MemoryStore) ListMappings(_ context.Context) ([]ModelMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
