package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backbox/internal/domain"
)

// FactsRepositoryPG gathers entitlement facts from PostgreSQL. It reports raw
// facts only; resolution and consistency checks stay in the domain package.
type FactsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewFactsRepository creates a new FactsRepositoryPG.
func NewFactsRepository(pool *pgxpool.Pool) *FactsRepositoryPG {
	return &FactsRepositoryPG{pool: pool}
}

func (r *FactsRepositoryPG) GetFacts(ctx context.Context, accountID string) (*domain.EntitlementFacts, error) {
	facts := &domain.EntitlementFacts{PillarUsage: map[domain.Pillar]int{}}

	// A verified token whose account row is gone resolves like an anonymous
	// caller rather than erroring.
	row := r.pool.QueryRow(ctx, `
SELECT
  u.trial_consumed_at IS NOT NULL,
  EXISTS (
    SELECT 1 FROM subscriptions s
    WHERE s.account_id = u.id
      AND s.status = 'active'
      AND s.current_period_end > NOW()
  ),
  COALESCE((SELECT p.id::text FROM projects p WHERE p.account_id = u.id AND p.mode = 'trial'), '')
FROM users u
WHERE u.id = $1;
`, accountID)
	if err := row.Scan(&facts.TrialConsumed, &facts.ActiveSubscription, &facts.TrialProjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return facts, nil
		}
		return nil, err
	}
	facts.Authenticated = true

	if facts.TrialProjectID != "" {
		rows, err := r.pool.Query(ctx, `SELECT pillar, used FROM pillar_usage WHERE project_id = $1`, facts.TrialProjectID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var pillar domain.Pillar
			var used int
			if err := rows.Scan(&pillar, &used); err != nil {
				return nil, err
			}
			facts.PillarUsage[pillar] = used
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return facts, nil
}

// MarkTrialConsumed stamps the account's one trial run as used. It is called
// in the same flow that creates the trial project; a repeat stamp is a no-op.
func (r *FactsRepositoryPG) MarkTrialConsumed(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET trial_consumed_at = NOW() WHERE id = $1 AND trial_consumed_at IS NULL`, accountID)
	return err
}

var _ domain.FactsRepository = (*FactsRepositoryPG)(nil)
