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
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/relay/pkg/openai"
	"github.com/teradata-labs/relay/pkg/store"
)

type failingStore struct {
	store.Store
}

func (f *failingStore) PutUsage(context.Context, *store.UsageRow) error {
	return errors.New("table is on fire")
}

func TestRecordWritesRow(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st)

	r.Record(context.Background(), &store.UsageRow{
		APIKey:       "sk-test",
		RequestID:    "req-1",
		Model:        "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		PromptTokens: 7, CompletionTokens: 3,
		Success: true,
	})

	rows := st.Usage()
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].TotalTokens)
	assert.NotZero(t, rows[0].TimestampMillis)
}

func TestRecordSurvivesCanceledContext(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRecorder(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, &store.UsageRow{APIKey: "sk-test", RequestID: "req-2"})

	assert.Len(t, st.Usage(), 1)
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	r := NewRecorder(&failingStore{})
	// Must not panic or propagate the error.
	r.Record(context.Background(), &store.UsageRow{RequestID: "req-3"})
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	n := EstimateTokens("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 5)
	assert.Less(t, n, 20)
}

func TestEstimatePromptTokens(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Messages: []openai.ChatMessage{
			{Role: "system", Content: json.RawMessage(`"You are helpful."`)},
			{Role: "user", Content: json.RawMessage(`"Tell me about Go."`)},
		},
	}
	assert.Greater(t, EstimatePromptTokens(req), 0)
}
