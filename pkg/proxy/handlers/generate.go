package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/governor/pkg/limits"
	"mercator-hq/governor/pkg/limits/queue"
	"mercator-hq/governor/pkg/proxy"
	"mercator-hq/governor/pkg/upstream"
)

// StatusPath is the polling path prefix returned for deferred generations.
const StatusPath = "/ai/status/"

// Generate serves POST /ai/generate and /ai/generate/{type}.
//
// The request is admitted to the queue and answered with the completion
// when it finishes within the wait budget (200), or with a queue ticket to
// poll otherwise (202).
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := proxy.ParseGenerateRequest(r, h.maxBody)
	if err != nil {
		var reqErr *proxy.RequestError
		if !errors.As(err, &reqErr) {
			h.logger.WarnContext(ctx, "Failed to read generation request", "error", err)
		}
		writeError(w, r, proxy.HandleError(err))
		return
	}

	genType := chi.URLParam(r, "type")
	if genType == "" {
		genType = body.Type
	}

	outcome, err := h.uc.Generate(ctx, limits.GenerationRequest{
		UserID:   id.UserID,
		Tier:     id.Tier,
		Endpoint: r.URL.Path,
		Prompt: upstream.Prompt{
			Type:      genType,
			Text:      body.Prompt,
			MaxTokens: body.MaxTokens,
			UserID:    id.UserID,
		},
		Urgent: body.Urgent,
	})
	if err != nil {
		h.logGenerateError(r, err)
		writeError(w, r, proxy.HandleError(err))
		return
	}

	status := http.StatusOK
	statusURL := ""
	if outcome.Deferred() {
		status = http.StatusAccepted
		statusURL = StatusPath + outcome.Ticket.RequestID
	}
	_ = proxy.WriteJSONResponse(w, status, proxy.FormatGenerateResponse(outcome, statusURL))
}

func (h *Handlers) logGenerateError(r *http.Request, err error) {
	var admission *queue.AdmissionError
	switch {
	case errors.As(err, &admission):
		h.logger.InfoContext(r.Context(), "Generation rejected", "reason", admission.Err)
	case errors.Is(err, queue.ErrGenerationFailure), errors.Is(err, queue.ErrRequestTimeout):
		h.logger.WarnContext(r.Context(), "Generation failed", "error", err)
	case errors.Is(err, r.Context().Err()):
		h.logger.DebugContext(r.Context(), "Client went away during generation")
	default:
		h.logger.ErrorContext(r.Context(), "Generation error", "error", err)
	}
}

// Status serves GET /ai/status/{requestID}. Callers only see their own
// requests; anything else is reported as not found.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}

	req, err := h.uc.RequestStatus(chi.URLParam(r, "requestID"))
	if err == nil && req.UserID != id.UserID {
		err = queue.ErrNotFound
	}
	if err != nil {
		writeError(w, r, proxy.HandleError(err))
		return
	}

	var cost func(int) float64
	if h.estimator != nil {
		cost = h.estimator.EstimateCost
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatStatusResponse(req, cost))
}
