// Package proxy holds the HTTP plumbing shared by the governor handlers and
// middleware.
//
// It parses generation requests, reads the identity headers set by the
// authentication layer (X-User-ID, X-User-Tier), maps usage-control errors
// to the error envelope of pkg/proxy/types and writes JSON responses.
//
// # Error mapping
//
//	*ratelimit.LimitError            429 rate_limit_exceeded, Retry-After
//	queue.ErrUserQueueLimitExceeded  429 user_queue_limit
//	queue.ErrQueueFull               503 queue_full, Retry-After
//	queue.ErrNotFound                404
//	queue.ErrRequestTimeout          504
//	generation timeout               504
//	queue.ErrGenerationFailure       502
//	anything else                    500
package proxy
