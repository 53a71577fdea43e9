package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrTrialExists          = errors.New("trial project already exists")
	ErrStepMismatch         = errors.New("pillar does not match current step")
	ErrProjectSealed        = errors.New("project is sealed")
	ErrEvaluationInProgress = errors.New("evaluation in progress")
	ErrFinalRequired        = errors.New("final recap prerequisites not met")
	ErrProviderFailure      = errors.New("provider failure")
)
