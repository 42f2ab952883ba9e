// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/middleware"
)

// NewRouter assembles the serving API router.
func NewRouter(cfg *config.Config, h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Prometheus)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.API.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))
	r.Use(httprate.Limit(
		cfg.API.RateLimitReqs,
		cfg.API.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/predict", h.PredictBatch)
		r.Post("/predict", h.PredictOne)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
