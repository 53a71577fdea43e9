package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"backbox/internal/domain"
	"backbox/internal/infra"
	"backbox/internal/middleware"
	"backbox/internal/providers/recap"
)

type App struct {
	Cfg      *infra.Config
	Log      zerolog.Logger
	Facts    domain.FactsRepository
	Projects domain.ProjectRepository
	Recaps   recap.Generator
}

func NewApp(cfg *infra.Config, log zerolog.Logger, facts domain.FactsRepository, projects domain.ProjectRepository, recaps recap.Generator) *App {
	return &App{Cfg: cfg, Log: log, Facts: facts, Projects: projects, Recaps: recaps}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) currentAccountID(r *http.Request) string {
	return middleware.AccountIDFromContext(r.Context())
}

func (a *App) quotaConfig() domain.QuotaConfig {
	return domain.QuotaConfig{
		PerPillarMax: a.Cfg.PerPillarMax,
		PerHourMax:   a.Cfg.RateLimitPerHour,
	}
}
