package domain

import "context"

// FactsRepository supplies the entitlement facts for one account.
type FactsRepository interface {
	GetFacts(ctx context.Context, accountID string) (*EntitlementFacts, error)
	// MarkTrialConsumed stamps the account's single trial run as used.
	// Stamping an already-consumed account is a no-op.
	MarkTrialConsumed(ctx context.Context, accountID string) error
}

// AdvanceCommit is the atomic write applied once a pillar evaluation has
// succeeded: answers (last-write-wins per fieldKey), the mini-recap, the
// quota increment guarded by QuotaMax, the step advance and the evaluation
// release commit together or not at all.
type AdvanceCommit struct {
	ProjectID string
	Pillar    Pillar
	NextStep  Step
	Answers   []Answer
	Recap     MiniRecapOutput
	QuotaMax  int
}

// ProjectRepository defines persistence for projects and their recaps.
type ProjectRepository interface {
	// Create inserts a project. For trial-mode projects the insert is a
	// check-and-set against the one-trial-per-account constraint and returns
	// ErrTrialExists when another trial project already owns the slot.
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, projectID string) (*Project, error)
	// ListByAccount returns the account's projects, most recently updated first.
	ListByAccount(ctx context.Context, accountID string) ([]Project, error)
	// TrialProjectID returns the account's trial project id, or "" when none.
	TrialProjectID(ctx context.Context, accountID string) (string, error)
	Answers(ctx context.Context, projectID string) ([]Answer, error)
	PillarUsage(ctx context.Context, projectID string) (map[Pillar]int, error)
	MiniRecaps(ctx context.Context, projectID string) (map[Pillar]MiniRecapOutput, error)
	FinalRecap(ctx context.Context, projectID string) (*FinalRecapOutput, error)
	// BeginEvaluation reserves the project for one in-flight evaluation and
	// returns ErrEvaluationInProgress when a reservation is already held.
	BeginEvaluation(ctx context.Context, projectID string, pillar Pillar) error
	AbortEvaluation(ctx context.Context, projectID string) error
	// CommitAdvance applies the full advance atomically. It returns
	// ErrQuotaExceeded when the guarded quota increment fails.
	CommitAdvance(ctx context.Context, commit AdvanceCommit) error
	// SaveFinalRecap stores the synthesis once; a concurrent duplicate write
	// keeps the first stored output.
	SaveFinalRecap(ctx context.Context, projectID string, out FinalRecapOutput) error
}
