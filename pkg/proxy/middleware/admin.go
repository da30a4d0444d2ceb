package middleware

import (
	"log/slog"
	"net/http"

	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/types"
)

// RequireAdmin admits callers with the admin role or whose user id is in
// users. Anonymous callers get 401, other users 403.
func RequireAdmin(users []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(users))
	for _, u := range users {
		allowed[u] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityOf(r)

			if !id.Authenticated() {
				writeAdminError(w, r, types.NewErrorResponse(
					"Authentication required.",
					types.ErrorTypeAuthentication,
					"",
					types.CodeMissingUser,
				))
				return
			}

			_, listed := allowed[id.UserID]
			if id.Role != proxy.RoleAdmin && !listed {
				logger.WarnContext(r.Context(), "Admin route denied",
					"user_id", id.UserID,
					"path", r.URL.Path,
				)
				writeAdminError(w, r, types.NewPermissionError(
					"Administrator access required.",
					types.CodeAdminRequired,
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAdminError(w http.ResponseWriter, r *http.Request, errResp *types.ErrorResponse) {
	errResp.Error.RequestID = GetRequestID(r.Context())
	_ = proxy.WriteErrorResponse(w, errResp)
}
