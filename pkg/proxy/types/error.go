package types

import "net/http"

// ErrorResponse is the error envelope returned for every failed request.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// RetryAfter is the suggested wait in seconds before retrying.
	RetryAfter int `json:"retryAfter,omitempty"`

	// RequestID identifies a queued request the client can keep polling.
	RequestID string `json:"requestId,omitempty"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeAuthentication indicates a missing identity (401).
	ErrorTypeAuthentication = "authentication_error"

	// ErrorTypePermission indicates an authenticated caller lacking a
	// required role (403).
	ErrorTypePermission = "permission_error"

	// ErrorTypeNotFound indicates a resource was not found (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeRateLimitExceeded indicates too many requests (429).
	ErrorTypeRateLimitExceeded = "rate_limit_exceeded"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeBadGateway indicates an upstream generation failure (502).
	ErrorTypeBadGateway = "bad_gateway"

	// ErrorTypeServiceUnavailable indicates temporary unavailability (503).
	ErrorTypeServiceUnavailable = "service_unavailable"

	// ErrorTypeGatewayTimeout indicates a generation timeout (504).
	ErrorTypeGatewayTimeout = "gateway_timeout"
)

// Error code constants.
const (
	CodeMissingField      = "missing_field"
	CodeInvalidValue      = "invalid_value"
	CodeInvalidJSON       = "invalid_json"
	CodeRequestTooLarge   = "request_too_large"
	CodeMissingUser       = "missing_user"
	CodeAdminRequired     = "admin_required"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeQueueFull         = "queue_full"
	CodeUserQueueLimit    = "user_queue_limit_exceeded"
	CodeRequestTimeout    = "request_timeout"
	CodeGenerationFailure = "generation_failure"
	CodeGenerationTimeout = "generation_timeout"
	CodeRequestNotFound   = "request_not_found"
	CodeServiceStopping   = "service_stopping"
	CodeInternalError     = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewServerError creates an error response for internal server errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// NewPermissionError creates an error response for missing privileges (403).
func NewPermissionError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypePermission, "", code)
}

// NewNotFoundError creates an error response for unknown resources (404).
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, "", code)
}

// NewRateLimitError creates an error response for quota rejections (429).
func NewRateLimitError(message, code string, retryAfter int) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorTypeRateLimitExceeded, "", code)
	resp.Error.RetryAfter = retryAfter
	return resp
}

// NewServiceUnavailableError creates an error response for temporary
// unavailability (503).
func NewServiceUnavailableError(message, code string, retryAfter int) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorTypeServiceUnavailable, "", code)
	resp.Error.RetryAfter = retryAfter
	return resp
}

// NewBadGatewayError creates an error response for generation failures (502).
func NewBadGatewayError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeBadGateway, "", CodeGenerationFailure)
}

// NewGatewayTimeoutError creates an error response for timeouts (504).
func NewGatewayTimeoutError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeGatewayTimeout, "", code)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServerError:
		return http.StatusInternalServerError
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
