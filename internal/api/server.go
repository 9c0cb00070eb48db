package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/logging"
	"github.com/kickoff-planner/kickoff/internal/prayer"
)

// Deps are the collaborators shared by every request.
type Deps struct {
	Config       *config.Config
	Availability *availability.Oracle
	Prayer       *prayer.Calculator
	Fixtures     *fixtures.Loader
	Sessions     *Registry
	Logger       *zap.Logger
}

// NewRouter creates the chi router with all middleware and routes.
func NewRouter(d Deps) *chi.Mux {
	logger := logging.OrNop(d.Logger)
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewRegistry()
	}
	h := &Handler{
		cfg:      d.Config,
		avail:    d.Availability,
		prayer:   d.Prayer,
		fixtures: d.Fixtures,
		sessions: sessions,
		validate: newValidator(),
		logger:   logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(TimingMiddleware)

	c := corslib.New(corslib.Options{
		AllowedOrigins:   d.Config.Server.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Process-Time", "Content-Disposition", "Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	if d.Config.Server.RateLimitRequests > 0 {
		r.Use(RateLimitMiddleware(d.Config.Server.RateLimitRequests, d.Config.Server.RateLimitWindow))
	}

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/kickoffs", h.Kickoffs)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)

				r.Get("/weeks/{week}", h.GetWeek)
				r.Post("/weeks/{week}/auto-commit", h.AutoCommitWeek)
				r.Get("/days/{date}", h.GetDay)
				r.Get("/export", h.Export)

				r.Route("/matches/{matchID}", func(r chi.Router) {
					r.Get("/", h.GetMatch)
					r.Get("/scenarios", h.GetScenarios)
					r.Post("/commit", h.Commit)
					r.Delete("/commit", h.Decommit)
					r.Get("/stadiums", h.StadiumOptions)
					r.Put("/scenarios/{scenarioID}/stadium", h.UpdateStadium)
				})
			})
		})
	})

	return r
}

// NewServer wraps the router in an http.Server with the service timeouts.
func NewServer(d Deps) *http.Server {
	return &http.Server{
		Addr:         d.Config.Server.Addr,
		Handler:      NewRouter(d),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
