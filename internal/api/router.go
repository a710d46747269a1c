package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/jobpipe/internal/api/middleware"
	"github.com/phrazzld/jobpipe/internal/store"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	// JWTSecret enables bearer authentication on /jobs when non-empty.
	JWTSecret       string
	MaxPayloadBytes int64
	// Pingers are checked by /ready.
	Pingers map[string]store.Pinger
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(jobs JobService, cfg RouterConfig, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jobHandler, err := NewJobHandler(jobs, cfg.MaxPayloadBytes, logger)
	if err != nil {
		return nil, err
	}
	healthHandler := NewHealthHandler(cfg.Pingers, logger)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Trace(logger))

	r.Route("/jobs", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.NewAuthMiddleware(cfg.JWTSecret).Authenticate)
		}

		r.Post("/", jobHandler.SubmitJob)
		r.Get("/", jobHandler.ListJobs)
		r.Get("/{id}", jobHandler.GetJob)
		r.Get("/{id}/artifacts/{name}", jobHandler.GetArtifact)
		r.Delete("/{id}/artifacts/{name}", jobHandler.DeleteArtifact)
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	return r, nil
}
