package recap

import (
	"context"

	"backbox/internal/domain"
)

// MiniRequest carries everything the collaborator needs to evaluate one
// pillar of a project.
type MiniRequest struct {
	ProjectID  string
	SourceText string
	Pillar     domain.Pillar
	Answers    []domain.Answer
	Locale     string
}

// FinalRequest asks for the cross-pillar synthesis. All four mini-recaps are
// present by the time a generator sees this.
type FinalRequest struct {
	ProjectID  string
	SourceText string
	MiniRecaps map[domain.Pillar]domain.MiniRecapOutput
	Locale     string
}

// Generator produces recap content. Implementations must respect ctx
// cancellation and return an error wrapping domain.ErrProviderFailure when
// the upstream is unavailable; callers treat that as retryable and commit no
// state.
type Generator interface {
	MiniRecap(ctx context.Context, req MiniRequest) (*domain.MiniRecapOutput, error)
	FinalRecap(ctx context.Context, req FinalRequest) (*domain.FinalRecapOutput, error)
}
