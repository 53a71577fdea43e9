package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"backbox/internal/http/handlers"
	"backbox/internal/middleware"
)

// NewRouter wires the public surface. Everything below /me and /backbox sits
// behind authentication; mutating routes additionally pass the rolling-hour
// rate limiter keyed by account.
func NewRouter(app *handlers.App, countryLookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(app.Log),
		chimw.Recoverer,
		middleware.CORS(nil),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(app.Cfg.JWTSecret),
			middleware.Locale(app.Cfg.DefaultLocale, countryLookup),
		)

		r.Get("/me/entitlements", app.GetEntitlements)

		r.Route("/backbox", func(r chi.Router) {
			r.Get("/", app.Dashboard)
			r.Get("/projects/{projectID}", app.GetProject)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(app.Cfg.RateLimitPerHour, time.Hour))
				r.Post("/trial", app.StartTrial)
				r.Post("/projects/{projectID}/steps/{pillar}", app.AdvanceStep)
				r.Post("/projects/{projectID}/final-recap", app.FinalRecap)
			})
		})
	})

	return r
}
