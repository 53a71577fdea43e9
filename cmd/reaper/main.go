package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"backbox/internal/infra"
	"backbox/internal/sqlinline"
)

// The reaper releases evaluation reservations whose holder died mid-flight.
// Without it a crashed API process would leave a project stuck behind
// EVALUATION_IN_PROGRESS until manual cleanup.

const pollInterval = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reaper: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	staleAfter := int(cfg.EvalTimeout.Seconds())

	logger.Info().Int("stale_after_seconds", staleAfter).Msg("reaper started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			releaseStale(ctx, runner, logger, staleAfter)
		}
	}
}

func releaseStale(ctx context.Context, runner *infra.SQLRunner, logger infra.Logger, staleAfter int) {
	rows, err := runner.Query(ctx, sqlinline.QReleaseStaleEvaluations, staleAfter)
	if err != nil {
		logger.Error().Err(err).Msg("reaper: release query failed")
		return
	}
	defer rows.Close()

	released := 0
	for rows.Next() {
		var projectID, pillar string
		var startedAt time.Time
		if err := rows.Scan(&projectID, &pillar, &startedAt); err != nil {
			logger.Error().Err(err).Msg("reaper: scan failed")
			return
		}
		released++
		logger.Warn().
			Str("project_id", projectID).
			Str("pillar", pillar).
			Time("started_at", startedAt).
			Msg("released stale evaluation")
	}
	if err := rows.Err(); err != nil {
		logger.Error().Err(err).Msg("reaper: rows error")
		return
	}

	if released > 0 {
		var pending int
		if err := runner.QueryRow(ctx, sqlinline.QCountPendingEvaluations).Scan(&pending); err != nil {
			logger.Error().Err(err).Msg("reaper: pending count failed")
			return
		}
		logger.Info().Int("released", released).Int("pending", pending).Msg("reaper pass complete")
	}
}
