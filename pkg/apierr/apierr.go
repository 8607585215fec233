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

// Package apierr defines the canonical error kinds surfaced by the gateway
// and their mapping onto OpenAI-shaped error responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/teradata-labs/relay/pkg/openai"
)

// Kind identifies a canonical failure class.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindAuthentication      Kind = "authentication"
	KindPermission          Kind = "permission"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamThrottled   Kind = "upstream_throttled"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamServer      Kind = "upstream_server"
	KindInternal            Kind = "internal"
)

// Error is a gateway failure with a canonical kind. Param, when set, names
// the request field that caused the failure.
type Error struct {
	Kind    Kind
	Message string
	Param   string
	cause   error
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithParam returns a copy of e naming the offending request field.
func (e *Error) WithParam(param string) *Error {
	cp := *e
	cp.Param = param
	return &cp
}

// Wrap attaches a cause for errors.Is/As chains.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// kindSpec is the wire mapping for one canonical kind.
type kindSpec struct {
	status  int
	errType string
	code    string
}

var kindTable = map[Kind]kindSpec{
	KindInvalidRequest:      {http.StatusBadRequest, "invalid_request_error", "invalid_request"},
	KindAuthentication:      {http.StatusUnauthorized, "authentication_error", "invalid_api_key"},
	KindPermission:          {http.StatusForbidden, "permission_error", "permission_denied"},
	KindNotFound:            {http.StatusNotFound, "not_found_error", "model_not_found"},
	KindRateLimited:         {http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded"},
	KindUpstreamThrottled:   {http.StatusTooManyRequests, "rate_limit_error", "upstream_throttled"},
	KindUpstreamUnavailable: {http.StatusServiceUnavailable, "service_unavailable", "upstream_unavailable"},
	KindUpstreamServer:      {http.StatusBadGateway, "server_error", "upstream_error"},
	KindInternal:            {http.StatusInternalServerError, "server_error", "internal_error"},
}

// HTTPStatus returns the HTTP status code for e's kind.
func (e *Error) HTTPStatus() int {
	if s, ok := kindTable[e.Kind]; ok {
		return s.status
	}
	return http.StatusInternalServerError
}

// Body returns the OpenAI-shaped error response for e.
func (e *Error) Body() openai.ErrorResponse {
	spec, ok := kindTable[e.Kind]
	if !ok {
		spec = kindTable[KindInternal]
	}
	var param *string
	if e.Param != "" {
		p := e.Param
		param = &p
	}
	return openai.ErrorResponse{
		Error: openai.APIError{
			Message: e.Message,
			Type:    spec.errType,
			Param:   param,
			Code:    spec.code,
		},
	}
}

// From coerces any error into an *Error. Unknown errors map to internal
// with a generic message so upstream details never leak to clients.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(KindInternal, err, "internal server error")
}
