package middleware

import (
	"context"
	"net/http"

	"mercator-hq/governor/pkg/limits/ratelimit"
	"mercator-hq/governor/pkg/proxy"
)

type contextKey string

const (
	// RequestIDKey stores the unique request ID.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// IdentityKey stores the caller identity.
	IdentityKey contextKey = "identity"
)

// Identity is the caller as seen by usage control.
type Identity struct {
	// UserID is the authenticated user, empty for anonymous callers.
	UserID string

	// Tier is the user's subscription tier.
	Tier ratelimit.Tier

	// ClientIP is the originating address.
	ClientIP string

	// Role is the caller's role asserted by the authentication layer.
	Role string
}

// Authenticated reports whether the caller carries a user id.
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// Key is the rate limit key: the user id when authenticated, else the IP.
func (id Identity) Key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + id.ClientIP
}

// IdentityFromRequest derives the identity from trusted headers set by the
// authentication layer.
func IdentityFromRequest(r *http.Request) Identity {
	return Identity{
		UserID:   proxy.ExtractUserID(r),
		Tier:     proxy.ExtractTier(r),
		ClientIP: proxy.ClientIP(r),
		Role:     proxy.ExtractRole(r),
	}
}

// GetIdentity returns the identity stored by IdentityMiddleware.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

// identityOf returns the stored identity or derives it from r.
func identityOf(r *http.Request) Identity {
	if id, ok := GetIdentity(r.Context()); ok {
		return id
	}
	return IdentityFromRequest(r)
}
