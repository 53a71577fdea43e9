package handlers

import (
	"net/http"

	"backbox/internal/domain"
)

type dashboardResponse struct {
	Entitlements domain.GetEntitlementsOutput `json:"entitlements"`
	RedirectTo   string                       `json:"redirectTo,omitempty"`
	Projects     []domain.ProjectSummary      `json:"projects"`
}

// Dashboard returns the account's project listing, or a routing signal back
// to the access gate when the state does not admit the view.
func (a *App) Dashboard(w http.ResponseWriter, r *http.Request) {
	out, ok := a.resolveEntitlements(w, r)
	if !ok {
		return
	}
	decision, err := domain.Authorize(out.AccessState, domain.OpViewDashboard)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	resp := dashboardResponse{Entitlements: out, Projects: []domain.ProjectSummary{}}
	switch {
	case decision.RedirectToGate:
		resp.RedirectTo = "/access-gate"
	case decision.Allowed:
		projects, err := a.Projects.ListByAccount(r.Context(), a.currentAccountID(r))
		if err != nil {
			a.failError(w, r, err)
			return
		}
		for i := range projects {
			resp.Projects = append(resp.Projects, projects[i].Summary())
		}
	default:
		a.fail(w, domain.NewAPIError(domain.CodeInternalError, "internal error", nil))
		return
	}
	a.json(w, http.StatusOK, resp)
}
