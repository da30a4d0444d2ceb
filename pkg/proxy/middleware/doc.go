// Package middleware provides the HTTP middleware of the governor API.
//
// # Middleware Chain
//
// The server installs the chain in this order (outermost first):
//
//  1. RequestIDMiddleware: assign or propagate X-Request-ID
//  2. IdentityMiddleware: resolve user, tier and client IP
//  3. Logging: log and record every request
//  4. Recovery: turn panics into 500 responses
//  5. CORSMiddleware: Cross-Origin Resource Sharing
//
// Route groups then add Protect with their rate limit category:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(middleware.Protect(manager, ratelimit.CategoryAI, logger))
//	    r.Post("/ai/generate", h.Generate)
//	})
//
// # Identity
//
// Authentication happens in front of this service. The trusted headers
// X-User-ID and X-User-Tier identify the caller; anonymous callers are
// limited by client IP and never tracked.
package middleware
