package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/types"
)

// Recovery recovers from panics in HTTP handlers and returns a 500 in the
// error envelope. The panic is logged with its stack trace; internal
// details are not exposed to clients.
//
// Example usage:
//
//	handler = Recovery(logger)(handler)
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "Panic in handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				errResp := types.NewServerError("An internal error occurred. Please try again later.")
				errResp.Error.RequestID = GetRequestID(r.Context())
				_ = proxy.WriteErrorResponse(w, errResp)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
