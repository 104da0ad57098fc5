package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluate handles POST /evaluations/{scope}/{entityId}. With ?async=true the
// request is queued for the worker and answered with 202, or refused with 503
// when no worker consumes the tenant's queue.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	entityID := chi.URLParam(r, "entityId")

	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if !h.asyncAvailable(tenantID) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("async evaluation is not available for this tenant"))
			return
		}
		req := domain.EvaluationRequest{Scope: scope, EntityID: entityID, TraceID: GetTraceID(ctx)}
		if err := bus.PublishJSON(ctx, h.svc.Bus, tenantID, domain.TopicEvaluationRequested, req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"scope":    string(scope),
			"entityId": entityID,
			"traceId":  req.TraceID,
		})
		return
	}

	eval, err := h.svc.Engine.Evaluate(ctx, tenantID, scope, entityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) asyncAvailable(tenantID string) bool {
	return h.svc.Bus != nil && h.svc.Worker != nil && h.svc.Worker.Serves(tenantID)
}

// GetScore handles GET /scores/{scope}/{entityId}.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	score, err := h.svc.Scores.Get(r.Context(), GetTenantID(r.Context()), scope, chi.URLParam(r, "entityId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// ListScores handles GET /scores/{scope}?severity=high.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	severity := domain.Severity(r.URL.Query().Get("severity"))
	list, err := h.svc.Scores.List(r.Context(), GetTenantID(r.Context()), scope, severity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scores": list,
		"count":  len(list),
	})
}

// Explain handles GET /scores/{scope}/{entityId}/explanation.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	explanation, err := h.svc.Explainer.Explain(r.Context(), GetTenantID(r.Context()), scope, chi.URLParam(r, "entityId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}
