package proxy

import (
	"context"
	"errors"
	"math"
	"time"

	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/proxy/types"
	"mercator-hq/governor/pkg/upstream"
)

// HandleError converts usage-control and generation errors to error
// responses. Unknown errors map to a generic 500 so internal details are
// not exposed.
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		msg := limitErr.Message
		if msg == "" {
			msg = "Too many requests, please try again later."
		}
		return types.NewRateLimitError(msg, types.CodeRateLimitExceeded, retrySeconds(limitErr.RetryAfter))
	}

	var admission *queue.AdmissionError
	if errors.As(err, &admission) {
		if errors.Is(admission.Err, queue.ErrUserQueueLimitExceeded) {
			return types.NewRateLimitError(
				"You have too many requests in progress. Please wait for them to finish.",
				types.CodeUserQueueLimit,
				0,
			)
		}
		return types.NewServiceUnavailableError(
			"The service is at capacity. Please try again shortly.",
			types.CodeQueueFull,
			retrySeconds(admission.RetryAfter),
		)
	}

	switch {
	case errors.Is(err, queue.ErrNotFound):
		return types.NewNotFoundError("Request not found or no longer available.", types.CodeRequestNotFound)
	case errors.Is(err, queue.ErrStopped):
		return types.NewServiceUnavailableError("The service is shutting down.", types.CodeServiceStopping, 0)
	case errors.Is(err, queue.ErrRequestTimeout):
		return types.NewGatewayTimeoutError("The request waited too long in the queue.", types.CodeRequestTimeout)
	case errors.Is(err, queue.ErrGenerationFailure) && errors.Is(err, context.DeadlineExceeded):
		return types.NewGatewayTimeoutError("Generation timed out.", types.CodeGenerationTimeout)
	case errors.Is(err, queue.ErrGenerationFailure):
		return types.NewBadGatewayError("Generation failed. Please try again later.")
	case errors.Is(err, upstream.ErrEmptyPrompt):
		return types.NewInvalidRequestError("prompt is required", "prompt", types.CodeMissingField)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}

// retrySeconds rounds d up to whole seconds, with a minimum of one second
// for positive durations.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
