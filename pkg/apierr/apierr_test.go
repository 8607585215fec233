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
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMapping(t *testing.T) {
	tests := []struct {
		kind    Kind
		status  int
		errType string
		code    string
	}{
		{KindInvalidRequest, http.StatusBadRequest, "invalid_request_error", "invalid_request"},
		{KindAuthentication, http.StatusUnauthorized, "authentication_error", "invalid_api_key"},
		{KindPermission, http.StatusForbidden, "permission_error", "permission_denied"},
		{KindNotFound, http.StatusNotFound, "not_found_error", "model_not_found"},
		{KindRateLimited, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded"},
		{KindUpstreamThrottled, http.StatusTooManyRequests, "rate_limit_error", "upstream_throttled"},
		{KindUpstreamUnavailable, http.StatusServiceUnavailable, "service_unavailable", "upstream_unavailable"},
		{KindUpstreamServer, http.StatusBadGateway, "server_error", "upstream_error"},
		{KindInternal, http.StatusInternalServerError, "server_error", "internal_error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "boom")
			assert.Equal(t, tt.status, e.HTTPStatus())
			body := e.Body()
			assert.Equal(t, tt.errType, body.Error.Type)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "boom", body.Error.Message)
			assert.Nil(t, body.Error.Param)
		})
	}
}

func TestWithParam(t *testing.T) {
	e := New(KindInvalidRequest, "temperature out of range").WithParam("temperature")
	body := e.Body()
	require.NotNil(t, body.Error.Param)
	assert.Equal(t, "temperature", *body.Error.Param)
}

func TestFromUnknownError(t *testing.T) {
	e := From(fmt.Errorf("dial tcp: connection refused"))
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	// The upstream detail stays out of the client-visible message.
	assert.Equal(t, "internal server error", e.Body().Error.Message)
}

func TestFromPreservesWrappedError(t *testing.T) {
	orig := New(KindUpstreamThrottled, "too many requests to model")
	wrapped := fmt.Errorf("invoke: %w", orig)
	e := From(wrapped)
	assert.Equal(t, KindUpstreamThrottled, e.Kind)
	assert.Equal(t, http.StatusTooManyRequests, e.HTTPStatus())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Wrap(KindUpstreamServer, cause, "upstream failed")
	assert.ErrorIs(t, e, cause)
}
