package proxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/proxy/types"
)

const (
	// DefaultMaxBodyBytes bounds generation request bodies when no limit is
	// configured (1MB).
	DefaultMaxBodyBytes = 1 << 20

	// UserIDHeader carries the authenticated user id set by the
	// authentication layer in front of this service.
	UserIDHeader = "X-User-ID"

	// UserTierHeader carries the user's subscription tier.
	UserTierHeader = "X-User-Tier"

	// UserRoleHeader carries the caller's role. "admin" grants access to
	// the admin routes.
	UserRoleHeader = "X-User-Role"

	// RoleAdmin is the UserRoleHeader value of administrators.
	RoleAdmin = "admin"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"

	// ForwardedForHeader is the proxy chain header used for the client IP.
	ForwardedForHeader = "X-Forwarded-For"
)

// ParseGenerateRequest decodes and validates an AI generation request body.
// Bodies larger than maxBytes are rejected.
func ParseGenerateRequest(r *http.Request, maxBytes int64) (*types.GenerateRequest, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}

	var req types.GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &RequestError{
			Message: "prompt is required",
			Code:    types.CodeMissingField,
			Param:   "prompt",
		}
	}
	if req.MaxTokens < 0 {
		return nil, &RequestError{
			Message: "maxTokens must be non-negative",
			Code:    types.CodeInvalidValue,
			Param:   "maxTokens",
		}
	}

	return &req, nil
}

// ExtractUserID returns the authenticated user id, or "" for anonymous
// requests.
func ExtractUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// ExtractTier returns the caller's tier. Missing or unknown values are
// treated as free.
func ExtractTier(r *http.Request) ratelimit.Tier {
	return ratelimit.ParseTier(strings.ToLower(strings.TrimSpace(r.Header.Get(UserTierHeader))))
}

// ExtractRole returns the caller's role in lower case, or "".
func ExtractRole(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.Header.Get(UserRoleHeader)))
}

// ExtractRequestID extracts the request ID from the X-Request-ID header.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// ClientIP returns the originating client address: the first entry of
// X-Forwarded-For when present, else the connection's remote host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get(ForwardedForHeader); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestError represents a request parsing or validation error.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an error response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
