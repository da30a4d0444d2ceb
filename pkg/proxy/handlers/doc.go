// Package handlers implements the governor HTTP endpoints.
//
// Routes (see pkg/server for the rate limit category of each):
//
//	GET  /health                      service health
//	POST /ai/generate                 AI generation through the queue
//	POST /ai/generate/{type}          same, with the generation type in the path
//	GET  /ai/status/{requestID}       status of a queued generation
//	GET  /user/usage?days=N           the caller's daily usage
//	GET  /admin/usage-stats           usage and queue statistics
//	GET  /admin/alerts                stored usage alerts
//
// Errors use the envelope of pkg/proxy/types.
package handlers
