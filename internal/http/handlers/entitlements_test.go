package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"backbox/internal/domain"
)

func TestGetEntitlementsTrialAvailable(t *testing.T) {
	projects := newFakeProjects()
	facts := newFakeFacts(projects)
	facts.known["acct-1"] = true
	app := newTestApp(facts, projects, &stubGenerator{})

	rr := httptest.NewRecorder()
	app.GetEntitlements(rr, authedRequest(t, "GET", "/me/entitlements", nil, "acct-1", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var out domain.GetEntitlementsOutput
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.AccessState != domain.AccessTrialAvailable {
		t.Fatalf("accessState = %s, want TRIAL_AVAILABLE", out.AccessState)
	}
	if out.TrialProjectID != nil {
		t.Fatalf("trialProjectId = %v, want null", *out.TrialProjectID)
	}
	if len(out.Quotas.PerPillarUsed) != 4 {
		t.Fatalf("perPillarUsed has %d keys, want all 4 pillars", len(out.Quotas.PerPillarUsed))
	}
	if out.Quotas.PerPillarMax != 2 || out.RateLimit.PerHourMax != 10 {
		t.Fatalf("ceilings = %d/%d, want 2/10", out.Quotas.PerPillarMax, out.RateLimit.PerHourMax)
	}
}

func TestGetEntitlementsActiveTrialCarriesProjectID(t *testing.T) {
	projects := newFakeProjects()
	facts := newFakeFacts(projects)
	facts.known["acct-1"] = true
	facts.consumed["acct-1"] = true
	p := seedProject(projects, "acct-1", domain.StepP2)
	projects.usage[p.ID] = map[domain.Pillar]int{domain.PillarP1: 1}
	app := newTestApp(facts, projects, &stubGenerator{})

	rr := httptest.NewRecorder()
	app.GetEntitlements(rr, authedRequest(t, "GET", "/me/entitlements", nil, "acct-1", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var out domain.GetEntitlementsOutput
	_ = json.NewDecoder(rr.Body).Decode(&out)
	if out.AccessState != domain.AccessTrialActive {
		t.Fatalf("accessState = %s, want TRIAL_ACTIVE", out.AccessState)
	}
	if out.TrialProjectID == nil || *out.TrialProjectID != p.ID {
		t.Fatalf("trialProjectId = %v, want %s", out.TrialProjectID, p.ID)
	}
	if out.Quotas.PerPillarUsed[domain.PillarP1] != 1 {
		t.Fatalf("perPillarUsed[p1] = %d, want 1", out.Quotas.PerPillarUsed[domain.PillarP1])
	}
	if out.Quotas.PerPillarUsed[domain.PillarP3] != 0 {
		t.Fatalf("untouched pillars must report zero, got %d", out.Quotas.PerPillarUsed[domain.PillarP3])
	}
}

func TestGetEntitlementsInconsistentFactsSurfaceInternalError(t *testing.T) {
	projects := newFakeProjects()
	facts := newFakeFacts(projects)
	facts.known["acct-1"] = true
	facts.consumed["acct-1"] = true // consumed, but no project anywhere
	app := newTestApp(facts, projects, &stubGenerator{})

	rr := httptest.NewRecorder()
	app.GetEntitlements(rr, authedRequest(t, "GET", "/me/entitlements", nil, "acct-1", nil))

	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	apiErr := decodeAPIError(t, rr)
	if apiErr.ErrorCode != domain.CodeInternalError {
		t.Fatalf("errorCode = %s, want INTERNAL_ERROR", apiErr.ErrorCode)
	}
	if apiErr.Details["violation"] != string(domain.ViolationTrialActiveMissingProjectID) {
		t.Fatalf("violation detail = %v, want %s", apiErr.Details["violation"], domain.ViolationTrialActiveMissingProjectID)
	}
}

func TestDashboardRedirectsUnentitledToGate(t *testing.T) {
	projects := newFakeProjects()
	facts := newFakeFacts(projects)
	app := newTestApp(facts, projects, &stubGenerator{})

	rr := httptest.NewRecorder()
	app.Dashboard(rr, authedRequest(t, "GET", "/backbox", nil, "ghost", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200: a redirect is routing, not denial", rr.Code)
	}
	var resp dashboardResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RedirectTo != "/access-gate" {
		t.Fatalf("redirectTo = %q, want /access-gate", resp.RedirectTo)
	}
	if len(resp.Projects) != 0 {
		t.Fatalf("unentitled dashboard must not list projects")
	}
}

func TestDashboardListsProjects(t *testing.T) {
	projects := newFakeProjects()
	facts := newFakeFacts(projects)
	facts.known["acct-1"] = true
	facts.consumed["acct-1"] = true
	p := seedProject(projects, "acct-1", domain.StepP3)
	app := newTestApp(facts, projects, &stubGenerator{})

	rr := httptest.NewRecorder()
	app.Dashboard(rr, authedRequest(t, "GET", "/backbox", nil, "acct-1", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp dashboardResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.RedirectTo != "" {
		t.Fatalf("unexpected redirect %q", resp.RedirectTo)
	}
	if len(resp.Projects) != 1 || resp.Projects[0].ID != p.ID {
		t.Fatalf("projects = %+v, want the seeded project", resp.Projects)
	}
}
