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

// Package server exposes the OpenAI-compatible HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/auth"
	"github.com/teradata-labs/relay/pkg/bedrock"
	"github.com/teradata-labs/relay/pkg/models"
	"github.com/teradata-labs/relay/pkg/ratelimit"
	"github.com/teradata-labs/relay/pkg/store"
	"github.com/teradata-labs/relay/pkg/translate"
	"github.com/teradata-labs/relay/pkg/usage"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a permissive CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// Upstream is the slice of the Bedrock client the server needs.
type Upstream interface {
	Invoke(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	InvokeStream(ctx context.Context, in *bedrockruntime.ConverseInput) (bedrock.Stream, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string
	CORS CORSConfig
	// UnaryTimeout bounds non-streaming completions.
	UnaryTimeout time.Duration
	// StreamTimeout bounds streaming completions end to end.
	StreamTimeout time.Duration

	Translate translate.Options
}

// Server is the gateway HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server

	authn    *auth.Authenticator
	limiter  *ratelimit.Limiter
	resolver *models.Resolver
	upstream Upstream
	recorder *usage.Recorder
	st       store.Store
}

// New creates the gateway server.
func New(cfg Config, authn *auth.Authenticator, limiter *ratelimit.Limiter, resolver *models.Resolver, upstream Upstream, recorder *usage.Recorder, st store.Store) *Server {
	if cfg.UnaryTimeout <= 0 {
		cfg.UnaryTimeout = 120 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 300 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		authn:    authn,
		limiter:  limiter,
		resolver: resolver,
		upstream: upstream,
		recorder: recorder,
		st:       st,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler builds the route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleListModels)
	mux.HandleFunc("/v1/models/", s.handleGetModel)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	var handler http.Handler = mux
	if s.cfg.CORS.Enabled {
		handler = s.corsMiddleware(handler)
	}
	return requestIDMiddleware(handler)
}

// Start runs the server until it fails or is stopped.
func (s *Server) Start() error {
	log.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers to HTTP responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := s.getAllowedOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		}

		if s.cfg.CORS.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if len(s.cfg.CORS.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.cfg.CORS.AllowedMethods, ", "))
		}
		if len(s.cfg.CORS.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.cfg.CORS.AllowedHeaders, ", "))
		}
		if len(s.cfg.CORS.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(s.cfg.CORS.ExposedHeaders, ", "))
		}
		if s.cfg.CORS.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.cfg.CORS.MaxAge))
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getAllowedOrigin checks if the origin is allowed and returns it, or empty string if not
func (s *Server) getAllowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
