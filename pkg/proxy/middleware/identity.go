package middleware

import (
	"context"
	"net/http"

	"mercator-hq/governor/pkg/telemetry/logging"
)

// IdentityMiddleware resolves the caller identity once per request and
// stores it in the context. The user and tier are also attached to log
// records written with the request context.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromRequest(r)

		ctx := context.WithValue(r.Context(), IdentityKey, id)
		if id.Authenticated() {
			ctx = logging.WithUser(ctx, id.UserID)
			ctx = logging.WithTier(ctx, string(id.Tier))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
