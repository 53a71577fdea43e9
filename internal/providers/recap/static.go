package recap

import (
	"context"
	"fmt"

	"backbox/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StaticGenerator produces deterministic recaps without calling any upstream.
// It backs local development and tests; provider selection happens at wiring
// time, never inside the lifecycle logic.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

var pillarThemes = map[domain.Pillar]string{
	domain.PillarP1: "problem framing",
	domain.PillarP2: "market understanding",
	domain.PillarP3: "execution plan",
	domain.PillarP4: "sustainability",
}

func (s *StaticGenerator) MiniRecap(ctx context.Context, req MiniRequest) (*domain.MiniRecapOutput, error) {
	titler := titleCaser(req.Locale)
	theme := pillarThemes[req.Pillar]
	score := 60 + 10*len(req.Answers)
	out := &domain.MiniRecapOutput{
		Pillar: req.Pillar,
		Score:  &score,
		Strengths: []string{
			fmt.Sprintf("%s covers the essentials", titler.String(theme)),
		},
		Improvements: []string{
			fmt.Sprintf("Add more detail to your %s", theme),
		},
		NextAction: fmt.Sprintf("Review your %s answers and continue", theme),
	}
	out.Normalize()
	return out, nil
}

func (s *StaticGenerator) FinalRecap(ctx context.Context, req FinalRequest) (*domain.FinalRecapOutput, error) {
	out := &domain.FinalRecapOutput{
		Priorities: []string{
			"Validate your riskiest assumption first",
			"Talk to potential customers this week",
		},
		PerPillar: map[domain.Pillar]domain.PillarRecap{},
	}
	for _, pillar := range domain.Pillars() {
		mini := req.MiniRecaps[pillar]
		out.PerPillar[pillar] = domain.PillarRecap{
			Score:        mini.Score,
			Strengths:    mini.Strengths,
			Improvements: mini.Improvements,
			NextAction:   mini.NextAction,
		}
	}
	out.Normalize()
	return out, nil
}

func titleCaser(locale string) cases.Caser {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return cases.Title(tag)
}

var _ Generator = (*StaticGenerator)(nil)
