package domain

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// ProjectMode labels how a project was created. "trial" exists only as a
// project mode, never as an entitlement value.
type ProjectMode string

const (
	ProjectModeTrial ProjectMode = "trial"
	ProjectModePaid  ProjectMode = "paid"
)

// Pillar identifies one of the four fixed assessment dimensions.
type Pillar string

const (
	PillarP1 Pillar = "p1"
	PillarP2 Pillar = "p2"
	PillarP3 Pillar = "p3"
	PillarP4 Pillar = "p4"
)

// Pillars returns the four pillars in assessment order.
func Pillars() [4]Pillar {
	return [4]Pillar{PillarP1, PillarP2, PillarP3, PillarP4}
}

// ParsePillar validates a raw pillar identifier.
func ParsePillar(raw string) (Pillar, error) {
	switch Pillar(raw) {
	case PillarP1, PillarP2, PillarP3, PillarP4:
		return Pillar(raw), nil
	}
	return "", fmt.Errorf("unknown pillar %q", raw)
}

// Step is a project's current position: one of the four pillars or the final
// recap stage.
type Step string

const (
	StepP1    Step = Step(PillarP1)
	StepP2    Step = Step(PillarP2)
	StepP3    Step = Step(PillarP3)
	StepP4    Step = Step(PillarP4)
	StepFinal Step = "final"
)

// NextStep returns the step that follows s. Progress is monotonic; final is
// terminal and maps to itself.
func NextStep(s Step) Step {
	switch s {
	case StepP1:
		return StepP2
	case StepP2:
		return StepP3
	case StepP3:
		return StepP4
	case StepP4:
		return StepFinal
	}
	return StepFinal
}

// Project is a single guided BackBox run owned by exactly one account.
type Project struct {
	ID          string
	AccountID   string
	Title       string
	SourceText  string
	Mode        ProjectMode
	CurrentStep Step
	UpdatedAt   time.Time
}

// AdvanceTarget checks that pillar is the project's current step and returns
// the step the project moves to once the pillar's evaluation commits.
// Step skipping is rejected and sealed projects accept no further mutation.
func (p *Project) AdvanceTarget(pillar Pillar) (Step, error) {
	if p.CurrentStep == StepFinal {
		return "", ErrProjectSealed
	}
	if Step(pillar) != p.CurrentStep {
		return "", ErrStepMismatch
	}
	return NextStep(p.CurrentStep), nil
}

// Answer is one submitted field value. fieldKey is unique per pillar with
// last-write-wins semantics.
type Answer struct {
	Pillar   Pillar          `json:"pillar"`
	FieldKey string          `json:"fieldKey"`
	Content  json.RawMessage `json:"content"`
}

// Input validation limits shared with clients. Lengths are counted in code
// points, not bytes.
const (
	SourceTextMinLength = 1
	SourceTextMaxLength = 30000
	TitleMaxLength      = 120
)

// StartProjectInput is the payload for creating a project.
type StartProjectInput struct {
	SourceText string `json:"sourceText"`
	Title      string `json:"title,omitempty"`
}

// Validate rejects out-of-range input before any state is read.
func (in StartProjectInput) Validate() *APIError {
	n := utf8.RuneCountInString(in.SourceText)
	if n < SourceTextMinLength {
		return NewAPIError(CodeValidationError, "sourceText is required", map[string]any{
			"field": "sourceText", "min": SourceTextMinLength,
		})
	}
	if n > SourceTextMaxLength {
		return NewAPIError(CodeValidationError, "sourceText too long", map[string]any{
			"field": "sourceText", "max": SourceTextMaxLength, "length": n,
		})
	}
	if utf8.RuneCountInString(in.Title) > TitleMaxLength {
		return NewAPIError(CodeValidationError, "title too long", map[string]any{
			"field": "title", "max": TitleMaxLength,
		})
	}
	return nil
}

// ValidateAnswers rejects malformed answer submissions for a pillar.
func ValidateAnswers(pillar Pillar, answers []Answer) *APIError {
	if len(answers) == 0 {
		return NewAPIError(CodeValidationError, "at least one answer is required", map[string]any{
			"field": "answers",
		})
	}
	for i, ans := range answers {
		if ans.FieldKey == "" {
			return NewAPIError(CodeValidationError, "answer fieldKey is required", map[string]any{
				"field": fmt.Sprintf("answers[%d].fieldKey", i),
			})
		}
		if ans.Pillar != "" && ans.Pillar != pillar {
			return NewAPIError(CodeValidationError, "answer pillar does not match the submitted step", map[string]any{
				"field": fmt.Sprintf("answers[%d].pillar", i), "expected": pillar,
			})
		}
	}
	return nil
}

// ProjectSummary is the listing shape for dashboards.
type ProjectSummary struct {
	ID          string      `json:"id"`
	Title       string      `json:"title,omitempty"`
	Mode        ProjectMode `json:"mode"`
	CurrentStep Step        `json:"currentStep"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Summary projects the listing shape from a full record.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:          p.ID,
		Title:       p.Title,
		Mode:        p.Mode,
		CurrentStep: p.CurrentStep,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProjectDetails is the full read model for a single project.
type ProjectDetails struct {
	Project    ProjectView      `json:"project"`
	Answers    []Answer         `json:"answers"`
	MiniRecaps []MiniRecapEntry `json:"miniRecaps"`
	FinalRecap *FinalRecapEntry `json:"finalRecap"`
}

// ProjectView is the project portion of ProjectDetails.
type ProjectView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title,omitempty"`
	SourceText  string      `json:"sourceText"`
	Mode        ProjectMode `json:"mode"`
	CurrentStep Step        `json:"currentStep"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// MiniRecapEntry is a stored per-pillar recap.
type MiniRecapEntry struct {
	Pillar Pillar          `json:"pillar"`
	Output MiniRecapOutput `json:"output"`
	Score  *int            `json:"score,omitempty"`
}

// FinalRecapEntry wraps the stored cross-pillar synthesis.
type FinalRecapEntry struct {
	Output FinalRecapOutput `json:"output"`
}
