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

// Package auth authenticates requests against the key store.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/store"
)

// Config holds authenticator settings.
type Config struct {
	// RequireAPIKey, when false, admits requests with no credential under
	// a shared anonymous identity.
	RequireAPIKey bool
	// MasterAPIKey, when set, authenticates as an unlimited master
	// identity without a store lookup.
	MasterAPIKey string
}

// Authenticator resolves a request credential to an APIKeyRecord.
type Authenticator struct {
	cfg Config
	st  store.Store
}

// New creates an Authenticator.
func New(cfg Config, st store.Store) *Authenticator {
	return &Authenticator{cfg: cfg, st: st}
}

// extractToken pulls the bearer credential from the request:
// Authorization: Bearer first, then the x-api-key header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(r.Header.Get("x-api-key"))
}

// Authenticate resolves the request to a key record. The token itself is
// never logged.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*store.APIKeyRecord, error) {
	token := extractToken(r)

	if token == "" {
		if !a.cfg.RequireAPIKey {
			return &store.APIKeyRecord{
				APIKey:   "anonymous",
				UserID:   "anonymous",
				IsActive: true,
			}, nil
		}
		return nil, apierr.New(apierr.KindAuthentication, "missing API key")
	}

	if a.cfg.MasterAPIKey != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.MasterAPIKey)) == 1 {
		return &store.APIKeyRecord{
			APIKey:    token,
			UserID:    "master",
			Name:      "master",
			IsActive:  true,
			Unlimited: true,
		}, nil
	}

	rec, err := a.st.GetAPIKey(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.KindAuthentication, "invalid API key")
		}
		log.Error("api key lookup failed", zap.Error(err))
		return nil, apierr.Wrap(apierr.KindInternal, err, "internal server error")
	}
	if !rec.IsActive {
		return nil, apierr.New(apierr.KindAuthentication, "API key is disabled")
	}
	return rec, nil
}
