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

// Package store persists API keys, usage rows, and model mapping overrides.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// APIKeyRecord describes one issued API key.
type APIKeyRecord struct {
	APIKey    string            `dynamodbav:"api_key"`
	UserID    string            `dynamodbav:"user_id"`
	Name      string            `dynamodbav:"name,omitempty"`
	IsActive  bool              `dynamodbav:"is_active"`
	RateLimit int               `dynamodbav:"rate_limit"` // requests per window; 0 means use the configured default
	CreatedAt time.Time         `dynamodbav:"created_at,unixtime"`
	Metadata  map[string]string `dynamodbav:"metadata,omitempty"`

	// Unlimited marks synthetic records (master key) that bypass rate
	// limiting. Never persisted.
	Unlimited bool `dynamodbav:"-"`
}

// UsageRow is one per-request accounting record.
type UsageRow struct {
	APIKey           string `dynamodbav:"api_key"`
	TimestampMillis  int64  `dynamodbav:"ts"`
	RequestID        string `dynamodbav:"request_id"`
	Model            string `dynamodbav:"model"`
	PromptTokens     int    `dynamodbav:"prompt_tokens"`
	CompletionTokens int    `dynamodbav:"completion_tokens"`
	TotalTokens      int    `dynamodbav:"total_tokens"`
	Success          bool   `dynamodbav:"success"`
	ErrorMessage     string `dynamodbav:"error_message,omitempty"`
	LatencyMillis    int64  `dynamodbav:"latency_ms"`
}

// ModelMapping maps a client-facing model id to an upstream model id.
type ModelMapping struct {
	ModelID    string `dynamodbav:"model_id"`
	UpstreamID string `dynamodbav:"upstream_id"`
}

// Store is the persistence surface for the gateway.
type Store interface {
	// GetAPIKey fetches a key record; ErrNotFound if absent.
	GetAPIKey(ctx context.Context, key string) (*APIKeyRecord, error)
	// PutAPIKey creates or replaces a key record.
	PutAPIKey(ctx context.Context, rec *APIKeyRecord) error
	// DeactivateAPIKey flips is_active off; ErrNotFound if the key does
	// not exist.
	DeactivateAPIKey(ctx context.Context, key string) error

	// PutUsage appends one usage row.
	PutUsage(ctx context.Context, row *UsageRow) error

	// GetMapping fetches one model mapping; ErrNotFound if absent.
	GetMapping(ctx context.Context, modelID string) (*ModelMapping, error)
	// PutMapping creates or replaces a mapping.
	PutMapping(ctx context.Context, m *ModelMapping) error
	// ListMappings returns all mapping overrides.
	ListMappings(ctx context.Context) ([]ModelMapping, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

// CreateAPIKey mints a fresh key record with a random sk- token.
func CreateAPIKey(userID, name string, rateLimit int) *APIKeyRecord {
	token := "sk-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &APIKeyRecord{
		APIKey:    token,
		UserID:    userID,
		Name:      name,
		IsActive:  true,
		RateLimit: rateLimit,
		CreatedAt: time.Now().UTC(),
	}
}
