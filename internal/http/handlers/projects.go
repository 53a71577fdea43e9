package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"backbox/internal/domain"
	"backbox/internal/middleware"
	"backbox/internal/providers/recap"
)

type startProjectResponse struct {
	Project  domain.ProjectSummary `json:"project"`
	Existing bool                  `json:"existing,omitempty"`
}

// StartTrial creates the caller's guided project. Input is validated before
// any state is read, so a rejected payload never leaves a project behind. A
// caller whose trial project already exists gets routed to it with the same
// id instead of a duplicate or an error.
func (a *App) StartTrial(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)
	if accountID == "" {
		a.fail(w, domain.NewAPIError(domain.CodeUnauthenticated, "missing account context", nil))
		return
	}

	var in domain.StartProjectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, domain.NewAPIError(domain.CodeValidationError, "invalid payload", nil))
		return
	}
	if apiErr := in.Validate(); apiErr != nil {
		a.fail(w, apiErr)
		return
	}

	out, ok := a.resolveEntitlements(w, r)
	if !ok {
		return
	}
	decision, err := domain.Authorize(out.AccessState, domain.OpStartTrial)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	switch {
	case decision.Deny != "":
		a.fail(w, domain.NewAPIError(decision.Deny, "no entitlement to start a project", nil))
		return
	case decision.RedirectToProject:
		a.respondExistingTrial(w, r, *out.TrialProjectID)
		return
	case decision.Allowed:
	default:
		a.fail(w, domain.NewAPIError(domain.CodeInternalError, "internal error", nil))
		return
	}

	mode := domain.ProjectModeTrial
	if out.AccessState == domain.AccessPaid {
		mode = domain.ProjectModePaid
	}
	project := &domain.Project{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Title:       in.Title,
		SourceText:  in.SourceText,
		Mode:        mode,
		CurrentStep: domain.StepP1,
	}
	if err := a.Projects.Create(r.Context(), project); err != nil {
		if errors.Is(err, domain.ErrTrialExists) {
			// Lost a race with a concurrent start; the winner's project is the
			// caller's project.
			existingID, lookupErr := a.Projects.TrialProjectID(r.Context(), accountID)
			if lookupErr != nil || existingID == "" {
				a.failError(w, r, err)
				return
			}
			a.respondExistingTrial(w, r, existingID)
			return
		}
		a.failError(w, r, err)
		return
	}

	if mode == domain.ProjectModeTrial {
		if err := a.Facts.MarkTrialConsumed(r.Context(), accountID); err != nil {
			// The project row already pins the trial; the stamp is recoverable.
			a.Log.Warn().Err(err).
				Str("account_id", accountID).
				Msg("failed to mark trial consumed")
		}
	}

	a.json(w, http.StatusCreated, startProjectResponse{Project: project.Summary()})
}

func (a *App) respondExistingTrial(w http.ResponseWriter, r *http.Request, projectID string) {
	project, err := a.Projects.GetByID(r.Context(), projectID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, startProjectResponse{Project: project.Summary(), Existing: true})
}

// loadOwnedProject fetches a project and enforces ownership. A project owned
// by another account reads as absent so existence never leaks.
func (a *App) loadOwnedProject(r *http.Request) (*domain.Project, error) {
	accountID := a.currentAccountID(r)
	if accountID == "" {
		return nil, domain.NewAPIError(domain.CodeUnauthenticated, "missing account context", nil)
	}
	project, err := a.Projects.GetByID(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		return nil, err
	}
	if project.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	return project, nil
}

// GetProject returns the full read model for one owned project.
func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := a.loadOwnedProject(r)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	ctx := r.Context()

	answers, err := a.Projects.Answers(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	minis, err := a.Projects.MiniRecaps(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	final, err := a.Projects.FinalRecap(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}

	details := domain.ProjectDetails{
		Project: domain.ProjectView{
			ID:          project.ID,
			Title:       project.Title,
			SourceText:  project.SourceText,
			Mode:        project.Mode,
			CurrentStep: project.CurrentStep,
			UpdatedAt:   project.UpdatedAt,
		},
		Answers:    answers,
		MiniRecaps: []domain.MiniRecapEntry{},
	}
	if details.Answers == nil {
		details.Answers = []domain.Answer{}
	}
	for _, pillar := range domain.Pillars() {
		if mini, ok := minis[pillar]; ok {
			details.MiniRecaps = append(details.MiniRecaps, domain.MiniRecapEntry{
				Pillar: pillar,
				Output: mini,
				Score:  mini.Score,
			})
		}
	}
	if final != nil {
		details.FinalRecap = &domain.FinalRecapEntry{Output: *final}
	}
	a.json(w, http.StatusOK, details)
}

type advanceStepRequest struct {
	Answers []domain.Answer `json:"answers"`
}

type advanceStepResponse struct {
	Recap    domain.MiniRecapOutput `json:"recap"`
	NextStep domain.Step            `json:"nextStep"`
}

// AdvanceStep submits a pillar's answers, runs the evaluation and, only once
// generation has succeeded, commits answers, recap, quota and the step
// advance together. A generation failure releases the reservation and leaves
// every counter untouched.
func (a *App) AdvanceStep(w http.ResponseWriter, r *http.Request) {
	pillar, err := domain.ParsePillar(chi.URLParam(r, "pillar"))
	if err != nil {
		a.fail(w, domain.NewAPIError(domain.CodeValidationError, "unknown pillar", map[string]any{
			"field": "pillar",
		}))
		return
	}
	var req advanceStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, domain.NewAPIError(domain.CodeValidationError, "invalid payload", nil))
		return
	}
	if apiErr := domain.ValidateAnswers(pillar, req.Answers); apiErr != nil {
		a.fail(w, apiErr)
		return
	}

	project, err := a.loadOwnedProject(r)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	nextStep, err := project.AdvanceTarget(pillar)
	if err != nil {
		a.failError(w, r, err)
		return
	}

	ctx := r.Context()
	usage, err := a.Projects.PillarUsage(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	if usage[pillar] >= a.Cfg.PerPillarMax {
		a.fail(w, domain.NewAPIError(domain.CodeQuotaReached, "submission quota reached for this pillar", map[string]any{
			"pillar":       pillar,
			"perPillarMax": a.Cfg.PerPillarMax,
			"used":         usage[pillar],
		}))
		return
	}

	if err := a.Projects.BeginEvaluation(ctx, project.ID, pillar); err != nil {
		a.failError(w, r, err)
		return
	}

	answers := make([]domain.Answer, len(req.Answers))
	for i, ans := range req.Answers {
		ans.Pillar = pillar
		answers[i] = ans
	}
	generated, err := a.Recaps.MiniRecap(ctx, recap.MiniRequest{
		ProjectID:  project.ID,
		SourceText: project.SourceText,
		Pillar:     pillar,
		Answers:    answers,
		Locale:     middleware.LocaleFromContext(ctx),
	})
	if err != nil {
		if abortErr := a.Projects.AbortEvaluation(ctx, project.ID); abortErr != nil {
			a.Log.Error().Err(abortErr).
				Str("project_id", project.ID).
				Msg("failed to release evaluation reservation")
		}
		a.failError(w, r, err)
		return
	}

	commit := domain.AdvanceCommit{
		ProjectID: project.ID,
		Pillar:    pillar,
		NextStep:  nextStep,
		Answers:   answers,
		Recap:     *generated,
		QuotaMax:  a.Cfg.PerPillarMax,
	}
	if err := a.Projects.CommitAdvance(ctx, commit); err != nil {
		if abortErr := a.Projects.AbortEvaluation(ctx, project.ID); abortErr != nil {
			a.Log.Error().Err(abortErr).
				Str("project_id", project.ID).
				Msg("failed to release evaluation reservation")
		}
		a.failError(w, r, err)
		return
	}

	a.json(w, http.StatusOK, advanceStepResponse{Recap: *generated, NextStep: nextStep})
}

// FinalRecap produces or replays the cross-pillar synthesis. The first
// successful generation is cached on the project; every later call returns
// the stored output bit-identically.
func (a *App) FinalRecap(w http.ResponseWriter, r *http.Request) {
	project, err := a.loadOwnedProject(r)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	ctx := r.Context()

	if stored, err := a.Projects.FinalRecap(ctx, project.ID); err != nil {
		a.failError(w, r, err)
		return
	} else if stored != nil {
		a.json(w, http.StatusOK, domain.FinalRecapEntry{Output: *stored})
		return
	}

	minis, err := a.Projects.MiniRecaps(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	if missing := domain.MissingMiniRecaps(minis); len(missing) > 0 {
		a.fail(w, domain.NewAPIError(domain.CodeFinalRequired, "complete all pillars before requesting the final recap", map[string]any{
			"missingPillars": missing,
		}))
		return
	}

	generated, err := a.Recaps.FinalRecap(ctx, recap.FinalRequest{
		ProjectID:  project.ID,
		SourceText: project.SourceText,
		MiniRecaps: minis,
		Locale:     middleware.LocaleFromContext(ctx),
	})
	if err != nil {
		a.failError(w, r, err)
		return
	}
	if err := a.Projects.SaveFinalRecap(ctx, project.ID, *generated); err != nil {
		a.failError(w, r, err)
		return
	}
	// Re-read after the first-write-wins save so a raced duplicate still
	// replies with the stored output.
	stored, err := a.Projects.FinalRecap(ctx, project.ID)
	if err != nil {
		a.failError(w, r, err)
		return
	}
	if stored == nil {
		stored = generated
	}
	a.json(w, http.StatusOK, domain.FinalRecapEntry{Output: *stored})
}
