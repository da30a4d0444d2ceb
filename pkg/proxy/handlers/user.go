package handlers

import (
	"net/http"
	"strconv"

	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/proxy/types"
)

// DefaultUsageDays is the /user/usage window when days is not given.
const DefaultUsageDays = 7

// UserUsage serves GET /user/usage?days=N for the calling user.
func (h *Handlers) UserUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	days := DefaultUsageDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, types.NewInvalidRequestError("days must be a positive integer", "days", types.CodeInvalidValue))
			return
		}
		days = n
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatUserUsageResponse(h.uc.UserUsage(id.UserID, days)))
}
