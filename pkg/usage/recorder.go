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

// Package usage records per-request accounting rows.
package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/store"
)

const writeTimeout = 5 * time.Second

// Recorder writes usage rows. Failures are logged and swallowed so
// accounting never affects the client response.
type Recorder struct {
	st store.Store
}

// NewRecorder creates a Recorder backed by st.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{st: st}
}

// Record persists one usage row. Called from deferred paths; the write
// survives client cancellation via a detached context.
func (r *Recorder) Record(ctx context.Context, row *store.UsageRow) {
	if row.TimestampMillis == 0 {
		row.TimestampMillis = time.Now().UnixMilli()
	}
	row.TotalTokens = row.PromptTokens + row.CompletionTokens

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.st.PutUsage(wctx, row); err != nil {
		log.Error("failed to record usage row",
			zap.String("request_id", row.RequestID),
			zap.Error(err))
	}
}
