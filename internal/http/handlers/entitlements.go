package handlers

import (
	"net/http"

	"backbox/internal/domain"
	"backbox/internal/middleware"
)

// resolveEntitlements loads facts for the current account and runs them
// through the resolver and validator. A validation failure is a data problem,
// not a caller problem: it logs the violation code and surfaces a generic
// internal error so no consumer ever branches on a guessed state.
func (a *App) resolveEntitlements(w http.ResponseWriter, r *http.Request) (domain.GetEntitlementsOutput, bool) {
	accountID := a.currentAccountID(r)
	facts := &domain.EntitlementFacts{}
	if accountID != "" {
		loaded, err := a.Facts.GetFacts(r.Context(), accountID)
		if err != nil {
			a.failError(w, r, err)
			return domain.GetEntitlementsOutput{}, false
		}
		facts = loaded
	}
	out := domain.Resolve(*facts, a.quotaConfig())
	if v := domain.ValidateEntitlements(out); v != nil {
		a.Log.Error().
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("account_id", accountID).
			Str("violation", string(v.Code)).
			Msg("entitlement invariant violated")
		a.fail(w, domain.NewAPIError(domain.CodeInternalError, "entitlement state is inconsistent", map[string]any{
			"violation": string(v.Code),
		}))
		return domain.GetEntitlementsOutput{}, false
	}
	return out, true
}

// GetEntitlements is the single endpoint consumers branch on for access state.
// The access gate renders for every state, but the verdict still goes through
// the closed dispatch so an unknown state fails instead of defaulting.
func (a *App) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	out, ok := a.resolveEntitlements(w, r)
	if !ok {
		return
	}
	if _, err := domain.Authorize(out.AccessState, domain.OpViewAccessGate); err != nil {
		a.failError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, out)
}
