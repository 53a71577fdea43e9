package handlers

import (
	"errors"
	"net/http"

	"backbox/internal/domain"
	"backbox/internal/middleware"
)

func (a *App) fail(w http.ResponseWriter, apiErr *domain.APIError) {
	a.json(w, apiErr.Status, apiErr)
}

// failError translates an error from the domain or persistence layer into the
// envelope. Unknown errors never leak; they log with the request id and come
// back as INTERNAL_ERROR.
func (a *App) failError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		a.fail(w, apiErr)
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.fail(w, domain.NewAPIError(domain.CodeNotFound, "project not found", nil))
	case errors.Is(err, domain.ErrForbidden):
		a.fail(w, domain.NewAPIError(domain.CodeForbidden, "operation not allowed", nil))
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.fail(w, domain.NewAPIError(domain.CodeQuotaReached, "submission quota reached for this pillar", map[string]any{
			"perPillarMax": a.Cfg.PerPillarMax,
		}))
	case errors.Is(err, domain.ErrStepMismatch):
		a.fail(w, domain.NewAPIError(domain.CodeValidationError, "pillar does not match the project's current step", nil))
	case errors.Is(err, domain.ErrProjectSealed):
		a.fail(w, domain.NewAPIError(domain.CodeFinalRequired, "all pillars are complete; request the final recap", nil))
	case errors.Is(err, domain.ErrFinalRequired):
		a.fail(w, domain.NewAPIError(domain.CodeFinalRequired, "complete all pillars before requesting the final recap", nil))
	case errors.Is(err, domain.ErrEvaluationInProgress):
		a.fail(w, domain.NewAPIError(domain.CodeEvaluationInProgress, "an evaluation is already running for this project", nil))
	case errors.Is(err, domain.ErrProviderFailure):
		a.fail(w, domain.NewAPIError(domain.CodeAIUnavailable, "recap generation is temporarily unavailable, try again", nil))
	default:
		a.Log.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		a.fail(w, domain.NewAPIError(domain.CodeInternalError, "internal error", nil))
	}
}
