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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := CreateAPIKey("alice", "ci key", 100)
	assert.True(t, strings.HasPrefix(rec.APIKey, "sk-"))
	assert.True(t, rec.IsActive)

	require.NoError(t, s.PutAPIKey(ctx, rec))

	got, err := s.GetAPIKey(ctx, rec.APIKey)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 100, got.RateLimit)

	require.NoError(t, s.DeactivateAPIKey(ctx, rec.APIKey))
	got, err = s.GetAPIKey(ctx, rec.APIKey)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestGetAPIKeyNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetAPIKey(context.Background(), "sk-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeactivateAPIKey(context.Background(), "sk-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMappings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutMapping(ctx, &ModelMapping{ModelID: "gpt-4o", UpstreamID: "us.anthropic.claude-sonnet-4-5-20250929-v1:0"}))
	require.NoError(t, s.PutMapping(ctx, &ModelMapping{ModelID: "fast", UpstreamID: "us.anthropic.claude-3-5-haiku-20241022-v1:0"}))

	m, err := s.GetMapping(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "us.anthropic.claude-sonnet-4-5-20250929-v1:0", m.UpstreamID)

	_, err = s.GetMapping(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fast", all[0].ModelID)
	assert.Equal(t, "gpt-4o", all[1].ModelID)
}

func TestUsageRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutUsage(ctx, &UsageRow{
		APIKey:       "sk-test",
		RequestID:    "req-1",
		Model:        "claude-sonnet-4-5",
		PromptTokens: 12, CompletionTokens: 34, TotalTokens: 46,
		Success: true,
	}))
	require.NoError(t, s.PutUsage(ctx, &UsageRow{
		APIKey:    "sk-test",
		RequestID: "req-2",
		Success:   false, ErrorMessage: "upstream throttled",
	}))

	rows := s.Usage()
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Success)
	assert.Equal(t, "upstream throttled", rows[1].ErrorMessage)
}
