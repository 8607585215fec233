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
package bedrock

import (
	"context"
	"errors"
	"net"

	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/teradata-labs/relay/pkg/apierr"
)

// classify maps an upstream failure to a canonical error kind. Upstream
// message text is kept client-visible only for validation failures.
func classify(err error) *apierr.Error {
	var throttle *bedrocktypes.ThrottlingException
	if errors.As(err, &throttle) {
		return apierr.Wrap(apierr.KindUpstreamThrottled, err, "upstream model is throttled, slow down")
	}
	var quota *bedrocktypes.ServiceQuotaExceededException
	if errors.As(err, &quota) {
		return apierr.Wrap(apierr.KindUpstreamThrottled, err, "upstream service quota exceeded")
	}

	var validation *bedrocktypes.ValidationException
	if errors.As(err, &validation) {
		return apierr.Wrap(apierr.KindInvalidRequest, err, "upstream rejected the request: %s", validation.ErrorMessage())
	}

	var notReady *bedrocktypes.ModelNotReadyException
	if errors.As(err, &notReady) {
		return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream model is not ready")
	}
	var unavailable *bedrocktypes.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream service unavailable")
	}
	var modelTimeout *bedrocktypes.ModelTimeoutException
	if errors.As(err, &modelTimeout) {
		return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream model timed out")
	}

	var internal *bedrocktypes.InternalServerException
	if errors.As(err, &internal) {
		return apierr.Wrap(apierr.KindUpstreamServer, err, "upstream internal error")
	}
	var modelErr *bedrocktypes.ModelErrorException
	if errors.As(err, &modelErr) {
		return apierr.Wrap(apierr.KindUpstreamServer, err, "upstream model error")
	}

	var denied *bedrocktypes.AccessDeniedException
	if errors.As(err, &denied) {
		return apierr.Wrap(apierr.KindPermission, err, "access to the upstream model was denied")
	}
	var notFound *bedrocktypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return apierr.Wrap(apierr.KindNotFound, err, "upstream model not found")
	}

	// Fall back to the smithy error code for faults not surfaced as
	// concrete types (event-stream errors arrive this way).
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException", "TooManyRequestsException":
			return apierr.Wrap(apierr.KindUpstreamThrottled, err, "upstream model is throttled, slow down")
		case "ServiceUnavailableException", "ModelNotReadyException", "ModelTimeoutException":
			return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream service unavailable")
		case "InternalServerException", "ModelErrorException", "ModelStreamErrorException":
			return apierr.Wrap(apierr.KindUpstreamServer, err, "upstream internal error")
		case "ValidationException":
			return apierr.Wrap(apierr.KindInvalidRequest, err, "upstream rejected the request: %s", apiErr.ErrorMessage())
		case "AccessDeniedException":
			return apierr.Wrap(apierr.KindPermission, err, "access to the upstream model was denied")
		case "ResourceNotFoundException":
			return apierr.Wrap(apierr.KindNotFound, err, "upstream model not found")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierr.Wrap(apierr.KindUpstreamUnavailable, err, "upstream request timed out")
	}

	return apierr.Wrap(apierr.KindUpstreamServer, err, "upstream request failed")
}

// retryable reports whether the classified kind qualifies for a retry.
func retryable(e *apierr.Error) bool {
	return e.Kind == apierr.KindUpstreamThrottled || e.Kind == apierr.KindUpstreamUnavailable
}
