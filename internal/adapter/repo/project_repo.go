package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"backbox/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectRepository backed by PostgreSQL.
// The one-trial-per-account rule is a partial unique index on
// projects(account_id) where mode = 'trial', so the check-and-set is a single
// insert and racing creators cannot both win.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new ProjectRepositoryPG.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

const oneTrialConstraint = "projects_one_trial_per_account"

func (r *ProjectRepositoryPG) Create(ctx context.Context, project *domain.Project) error {
	query := `
INSERT INTO projects (id, account_id, title, source_text, mode, current_step)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		project.ID,
		project.AccountID,
		project.Title,
		project.SourceText,
		project.Mode,
		project.CurrentStep,
	)
	if err := row.Scan(&project.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == oneTrialConstraint {
			return domain.ErrTrialExists
		}
		return err
	}
	return nil
}

func (r *ProjectRepositoryPG) GetByID(ctx context.Context, projectID string) (*domain.Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, account_id, title, source_text, mode, current_step, updated_at FROM projects WHERE id = $1`, projectID)
	return scanProject(row)
}

func (r *ProjectRepositoryPG) ListByAccount(ctx context.Context, accountID string) ([]domain.Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, title, source_text, mode, current_step, updated_at FROM projects WHERE account_id = $1 ORDER BY updated_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Title, &p.SourceText, &p.Mode, &p.CurrentStep, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepositoryPG) TrialProjectID(ctx context.Context, accountID string) (string, error) {
	row := r.pool.QueryRow(ctx, `SELECT id FROM projects WHERE account_id = $1 AND mode = 'trial'`, accountID)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *ProjectRepositoryPG) Answers(ctx context.Context, projectID string) ([]domain.Answer, error) {
	rows, err := r.pool.Query(ctx, `SELECT pillar, field_key, content FROM answers WHERE project_id = $1 ORDER BY pillar, field_key`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []domain.Answer
	for rows.Next() {
		var ans domain.Answer
		var content []byte
		if err := rows.Scan(&ans.Pillar, &ans.FieldKey, &content); err != nil {
			return nil, err
		}
		ans.Content = append(json.RawMessage(nil), content...)
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}

func (r *ProjectRepositoryPG) PillarUsage(ctx context.Context, projectID string) (map[domain.Pillar]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT pillar, used FROM pillar_usage WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	usage := make(map[domain.Pillar]int, 4)
	for rows.Next() {
		var pillar domain.Pillar
		var used int
		if err := rows.Scan(&pillar, &used); err != nil {
			return nil, err
		}
		usage[pillar] = used
	}
	return usage, rows.Err()
}

func (r *ProjectRepositoryPG) MiniRecaps(ctx context.Context, projectID string) (map[domain.Pillar]domain.MiniRecapOutput, error) {
	rows, err := r.pool.Query(ctx, `SELECT pillar, output FROM mini_recaps WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recaps := make(map[domain.Pillar]domain.MiniRecapOutput, 4)
	for rows.Next() {
		var pillar domain.Pillar
		var raw []byte
		if err := rows.Scan(&pillar, &raw); err != nil {
			return nil, err
		}
		var out domain.MiniRecapOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode mini recap for %s: %w", pillar, err)
		}
		recaps[pillar] = out
	}
	return recaps, rows.Err()
}

func (r *ProjectRepositoryPG) FinalRecap(ctx context.Context, projectID string) (*domain.FinalRecapOutput, error) {
	row := r.pool.QueryRow(ctx, `SELECT output FROM final_recaps WHERE project_id = $1`, projectID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var out domain.FinalRecapOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode final recap: %w", err)
	}
	return &out, nil
}

func (r *ProjectRepositoryPG) BeginEvaluation(ctx context.Context, projectID string, pillar domain.Pillar) error {
	tag, err := r.pool.Exec(ctx, `
INSERT INTO evaluations (project_id, pillar, started_at)
VALUES ($1, $2, NOW())
ON CONFLICT (project_id) DO NOTHING;
`, projectID, pillar)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEvaluationInProgress
	}
	return nil
}

func (r *ProjectRepositoryPG) AbortEvaluation(ctx context.Context, projectID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM evaluations WHERE project_id = $1`, projectID)
	return err
}

// CommitAdvance applies answers, recap, the guarded quota increment, the step
// advance and the evaluation release in one transaction. The quota increment
// only matches while used < max, so a raced commit fails here instead of
// overshooting the ceiling.
func (r *ProjectRepositoryPG) CommitAdvance(ctx context.Context, commit domain.AdvanceCommit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
INSERT INTO pillar_usage (project_id, pillar, used)
VALUES ($1, $2, 1)
ON CONFLICT (project_id, pillar) DO UPDATE
SET used = pillar_usage.used + 1
WHERE pillar_usage.used < $3
RETURNING used;
`, commit.ProjectID, commit.Pillar, commit.QuotaMax)
	var used int
	if err := row.Scan(&used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrQuotaExceeded
		}
		return err
	}

	for _, ans := range commit.Answers {
		if _, err := tx.Exec(ctx, `
INSERT INTO answers (project_id, pillar, field_key, content)
VALUES ($1, $2, $3, $4)
ON CONFLICT (project_id, pillar, field_key) DO UPDATE
SET content = EXCLUDED.content, updated_at = NOW();
`, commit.ProjectID, commit.Pillar, ans.FieldKey, []byte(ans.Content)); err != nil {
			return err
		}
	}

	recapJSON, err := json.Marshal(commit.Recap)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO mini_recaps (project_id, pillar, output, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (project_id, pillar) DO UPDATE
SET output = EXCLUDED.output, score = EXCLUDED.score;
`, commit.ProjectID, commit.Pillar, recapJSON, commit.Recap.Score); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE projects SET current_step = $2, updated_at = NOW() WHERE id = $1`, commit.ProjectID, commit.NextStep); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM evaluations WHERE project_id = $1`, commit.ProjectID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ProjectRepositoryPG) SaveFinalRecap(ctx context.Context, projectID string, out domain.FinalRecapOutput) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	// First write wins; a concurrent duplicate keeps the stored output so
	// repeated requests stay bit-identical.
	_, err = r.pool.Exec(ctx, `
INSERT INTO final_recaps (project_id, output)
VALUES ($1, $2)
ON CONFLICT (project_id) DO NOTHING;
`, projectID, raw)
	return err
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.AccountID, &p.Title, &p.SourceText, &p.Mode, &p.CurrentStep, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

var _ domain.ProjectRepository = (*ProjectRepositoryPG)(nil)
