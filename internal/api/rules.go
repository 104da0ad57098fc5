package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var errForbidden = errors.New("forbidden")

// RuleRequest is the body of POST /rules and PUT /rules/{id}.
type RuleRequest struct {
	// Global creates a global default; only the admin tenant may set it.
	Global      bool            `json:"global,omitempty"`
	Scope       string          `json:"scope"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Weight      *float64        `json:"weight"`
	Active      *bool           `json:"active,omitempty"`
	Severity    domain.Severity `json:"severity,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

func (req *RuleRequest) rule() (*domain.RiskRule, error) {
	if req.Weight == nil {
		return nil, fmt.Errorf("%w: weight is required", domain.ErrValidation)
	}
	scope, ok := domain.ParseScope(req.Scope)
	if !ok {
		scope = domain.Scope(req.Scope)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	return &domain.RiskRule{
		Scope:           scope,
		Code:            req.Code,
		Description:     req.Description,
		Weight:          *req.Weight,
		IsActive:        active,
		DefaultSeverity: severity,
		Config:          req.Config,
	}, nil
}

// EffectiveRules handles GET /effective-rules/{scope}: the tenant's rule set
// after overrides, in evaluation order.
func (h *Handler) EffectiveRules(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.svc.Registry.LoadActiveRules(r.Context(), GetTenantID(r.Context()), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// EffectiveRule handles GET /effective-rules/{scope}/{code}.
func (h *Handler) EffectiveRule(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := h.svc.Registry.GetRuleByCode(r.Context(), GetTenantID(r.Context()), scope, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.Registry.GetRule(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	var req RuleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := req.rule()
	if err != nil {
		writeError(w, r, err)
		return
	}

	owner := tenantID
	if req.Global {
		if !h.isAdmin(tenantID) {
			writeError(w, r, fmt.Errorf("%w: only the admin tenant may create global rules", errForbidden))
			return
		}
		owner = domain.GlobalTenantID
	}

	created, err := h.svc.Registry.CreateRule(r.Context(), owner, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateRule handles PUT /rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	var req RuleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := req.rule()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.guardGlobal(r, tenantID, id); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.svc.Registry.UpdateRule(r.Context(), tenantID, id, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.guardGlobal(r, tenantID, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Registry.DeleteRule(r.Context(), tenantID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) isAdmin(tenantID string) bool {
	return h.adminTenantID != "" && tenantID == h.adminTenantID
}

// guardGlobal keeps global rules read-only for everyone but the admin tenant.
// Tenants change a default by creating their own override instead.
func (h *Handler) guardGlobal(r *http.Request, tenantID, id string) error {
	rule, err := h.svc.Registry.GetRule(r.Context(), tenantID, id)
	if err != nil {
		return err
	}
	if rule.IsGlobal() && !h.isAdmin(tenantID) {
		return fmt.Errorf("%w: global rules are managed by the admin tenant", errForbidden)
	}
	return nil
}
