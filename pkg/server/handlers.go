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
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/openai"
	"github.com/teradata-labs/relay/pkg/ratelimit"
	"github.com/teradata-labs/relay/pkg/store"
	"github.com/teradata-labs/relay/pkg/translate"
	"github.com/teradata-labs/relay/pkg/usage"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := apierr.From(err)
	writeJSON(w, ae.HTTPStatus(), ae.Body())
}

func setRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	if !s.resolver.Loaded(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, apierr.New(apierr.KindInvalidRequest, "method not allowed"))
		return
	}
	rec, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	setRateHeaders(w, s.limiter.Peek(rec))

	ids := s.resolver.Models(r.Context())
	list := openai.ModelList{Object: "list", Data: make([]openai.Model, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, openai.Model{
			ID:      id,
			Object:  "model",
			Created: 0,
			OwnedBy: "anthropic",
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, apierr.New(apierr.KindInvalidRequest, "method not allowed"))
		return
	}
	rec, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	setRateHeaders(w, s.limiter.Peek(rec))

	id := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	if id == "" || !s.resolver.Known(r.Context(), id) {
		writeError(w, apierr.New(apierr.KindNotFound, "model %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, openai.Model{
		ID:      id,
		Object:  "model",
		Created: 0,
		OwnedBy: "anthropic",
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierr.New(apierr.KindInvalidRequest, "method not allowed"))
		return
	}

	rec, err := s.authn.Authenticate(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	admitted := time.Now()
	res, err := s.limiter.Admit(rec)
	setRateHeaders(w, res)
	if err != nil {
		retryAfter := res.Reset - time.Now().Unix()
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		writeError(w, err)
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.KindInvalidRequest, "invalid request body: %v", err))
		return
	}
	if req.Model == "" {
		writeError(w, apierr.New(apierr.KindInvalidRequest, "model is required").WithParam("model"))
		return
	}

	upstreamID := s.resolver.Resolve(r.Context(), req.Model)

	row := &store.UsageRow{
		APIKey:    rec.APIKey,
		RequestID: requestID(r.Context()),
		Model:     upstreamID,
	}
	finish := func(ctx context.Context, failure error) {
		row.LatencyMillis = time.Since(admitted).Milliseconds()
		row.Success = failure == nil
		if failure != nil {
			if row.ErrorMessage == "" {
				row.ErrorMessage = failure.Error()
			}
			if row.PromptTokens == 0 {
				// Upstream never reported usage; estimate for accounting.
				row.PromptTokens = usage.EstimatePromptTokens(&req)
			}
		}
		s.recorder.Record(ctx, row)
	}

	in, err := translate.Request(r.Context(), &req, upstreamID, s.cfg.Translate)
	if err != nil {
		finish(r.Context(), err)
		writeError(w, err)
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, &req, in, row, finish)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.UnaryTimeout)
	defer cancel()

	out, err := s.upstream.Invoke(ctx, in)
	if err != nil {
		finish(r.Context(), err)
		writeError(w, err)
		return
	}
	resp, err := translate.Response(out, req.Model)
	if err != nil {
		finish(r.Context(), err)
		writeError(w, err)
		return
	}

	row.PromptTokens = resp.Usage.PromptTokens
	row.CompletionTokens = resp.Usage.CompletionTokens
	finish(r.Context(), nil)
	writeJSON(w, http.StatusOK, resp)
}

// streamCompletion pumps upstream events to the client as SSE chunks.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *openai.ChatCompletionRequest, in *bedrockruntime.ConverseInput, row *store.UsageRow, finish func(context.Context, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StreamTimeout)
	defer cancel()

	stream, err := s.upstream.InvokeStream(ctx, in)
	if err != nil {
		finish(r.Context(), err)
		writeError(w, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		err := apierr.New(apierr.KindInternal, "streaming unsupported by connection")
		finish(r.Context(), err)
		writeError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	tr := translate.NewStreamTranslator(req.Model)
	send := func(chunk openai.ChatCompletionStreamChunk) bool {
		data, err := json.Marshal(chunk)
		if err != nil {
			log.Error("failed to marshal stream chunk", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	done := func() {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			// Accounting queries match on this exact string.
			row.ErrorMessage = "client_canceled"
			finish(r.Context(), apierr.Wrap(apierr.KindInternal, ctx.Err(), "client_canceled"))
			return

		case ev, open := <-stream.Events():
			if !open {
				if u := tr.Usage(); u != nil {
					row.PromptTokens = u.PromptTokens
					row.CompletionTokens = u.CompletionTokens
				}
				if streamErr := stream.Err(); streamErr != nil {
					// Abnormal termination: synthetic error chunk, an
					// out-of-band error event, then the terminator.
					send(tr.Fail())
					ae := apierr.From(streamErr)
					if data, err := json.Marshal(ae.Body()); err == nil {
						fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
						flusher.Flush()
					}
					done()
					finish(r.Context(), streamErr)
					return
				}
				send(tr.Finish())
				done()
				finish(r.Context(), nil)
				return
			}
			for _, chunk := range tr.Translate(ev) {
				if !send(chunk) {
					row.ErrorMessage = "client_canceled"
					finish(r.Context(), apierr.New(apierr.KindInternal, "client_canceled"))
					return
				}
			}
		}
	}
}
