// Package types defines the request and response bodies of the
// usage-control HTTP API.
//
// # Core Types
//
// Request types:
//   - GenerateRequest: body of the AI generation endpoints
//
// Response types:
//   - GenerateResponse: synchronous result or deferred queue ticket
//   - StatusResponse: queued request status for client polling
//   - UsageStatsResponse, AlertsResponse, UserUsageResponse: reporting
//
// Error types:
//   - ErrorResponse: OpenAI-style error envelope
//   - ErrorDetail: error details with type, message, code and retry hint
//
// # JSON Serialization
//
// Field names use camelCase to match the browser client. Durations are
// serialized in milliseconds.
package types
