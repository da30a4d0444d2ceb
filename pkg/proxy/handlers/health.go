package handlers

import (
	"net/http"

	"mercator-hq/governor/pkg/proxy"
)

// Health serves GET /health. A degraded service still answers 200 so load
// balancers keep routing to it; the status field carries the state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	report := h.uc.Health()
	if !report.Healthy() {
		h.logger.WarnContext(r.Context(), "Service degraded",
			"total_queued", report.Queue.TotalQueued,
			"current_load", report.Queue.CurrentLoad,
		)
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatHealthResponse(report))
}
