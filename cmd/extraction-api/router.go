// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/doculens/extraction-engine/cmd/extraction-api/handlers"
	"github.com/doculens/extraction-engine/cmd/extraction-api/middleware"
	"github.com/doculens/extraction-engine/internal/config"
	"github.com/doculens/extraction-engine/internal/extraction"
	"github.com/doculens/extraction-engine/internal/observability"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, engine *extraction.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"extraction-engine"}`))
	})

	extractHandler := handlers.NewExtractHandler(logger, engine, cfg.Server.MaxUploadBytes)
	jobsHandler := handlers.NewJobsHandler(logger, engine)
	cacheHandler := handlers.NewCacheHandler(logger, engine)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", extractHandler.Extract)

		r.Post("/jobs", jobsHandler.Submit)
		r.Get("/jobs/{jobID}", jobsHandler.Status)
		r.Delete("/jobs/{jobID}", jobsHandler.Cancel)

		r.Get("/cache/stats", cacheHandler.Stats)
	})

	return r
}
