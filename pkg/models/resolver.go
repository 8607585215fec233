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

// Package models resolves client-facing model ids to upstream Bedrock
// model ids: override table first, then the built-in defaults, then
// passthrough.
package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/store"
)

// defaultMappings ships with the binary, one undated and one dated alias
// per released family. Cross-region inference profiles (us.* / global.*)
// are preferred where available.
var defaultMappings = map[string]string{
	"claude-opus-4-5":            "global.anthropic.claude-opus-4-5-20251101-v1:0",
	"claude-opus-4-5-20251101":   "global.anthropic.claude-opus-4-5-20251101-v1:0",
	"claude-sonnet-4-5":          "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-sonnet-4-5-20250929": "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-haiku-4-5":           "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-haiku-4-5-20251001":  "global.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-3-5-haiku":           "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-5-haiku-20241022":  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

// snapshotTTL bounds how often the override table is re-read.
const snapshotTTL = 60 * time.Second

// Resolver maps model ids. The override snapshot is refreshed lazily, at
// most once per snapshotTTL; a single request always sees one snapshot.
type Resolver struct {
	st store.Store

	mu        sync.RWMutex
	overrides map[string]string
	fetchedAt time.Time
	loaded    bool

	now func() time.Time
}

// NewResolver creates a resolver backed by the given store. st may be nil
// for a defaults-only resolver.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{st: st, now: time.Now}
}

// snapshot returns the current override table, refreshing if stale. A
// refresh failure keeps the previous snapshot.
func (r *Resolver) snapshot(ctx context.Context) map[string]string {
	r.mu.RLock()
	if r.st == nil || (r.loaded && r.now().Sub(r.fetchedAt) < snapshotTTL) {
		m := r.overrides
		r.mu.RUnlock()
		return m
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded && r.now().Sub(r.fetchedAt) < snapshotTTL {
		return r.overrides
	}

	mappings, err := r.st.ListMappings(ctx)
	if err != nil {
		log.Warn("model mapping refresh failed, keeping previous snapshot", zap.Error(err))
		// Back off a full TTL so a broken store is not hammered per request.
		r.fetchedAt = r.now()
		r.loaded = true
		return r.overrides
	}

	next := make(map[string]string, len(mappings))
	for _, m := range mappings {
		next[m.ModelID] = m.UpstreamID
	}
	r.overrides = next
	r.fetchedAt = r.now()
	r.loaded = true
	return r.overrides
}

// Resolve maps a client model id to an upstream model id. Unknown ids pass
// through unchanged so raw Bedrock ids keep working.
func (r *Resolver) Resolve(ctx context.Context, modelID string) string {
	if upstream, ok := r.snapshot(ctx)[modelID]; ok {
		return upstream
	}
	if upstream, ok := defaultMappings[modelID]; ok {
		return upstream
	}
	return modelID
}

// Loaded reports whether an override snapshot has been read at least once.
// Used by the readiness probe.
func (r *Resolver) Loaded(ctx context.Context) bool {
	if r.st == nil {
		return true
	}
	r.snapshot(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Models returns the sorted union of override and default model ids.
func (r *Resolver) Models(ctx context.Context) []string {
	seen := make(map[string]struct{})
	for id := range defaultMappings {
		seen[id] = struct{}{}
	}
	for id := range r.snapshot(ctx) {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Known reports whether the id resolves via an override or a default row.
func (r *Resolver) Known(ctx context.Context, modelID string) bool {
	if _, ok := r.snapshot(ctx)[modelID]; ok {
		return true
	}
	_, ok := defaultMappings[modelID]
	return ok
}
