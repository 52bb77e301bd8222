// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pernocta/internal/authz"
	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/events"
)

// NewRouter wires the HTTP surface: probes and metrics outside the API
// middleware stack, the versioned API behind logging, rate limiting,
// authentication, and role enforcement.
func NewRouter(cfg *config.Config, h *Handler, auth *Authenticator, enforcer *authz.Enforcer, hub *events.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.HealthLive)
	r.Get("/readyz", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequestLogger)
		if cfg.Server.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.Server.RateLimit, time.Minute))
		}

		// Login stays outside the auth middleware.
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.With(enforcer.Require(authz.ObjectDataset, authz.ActionWrite)).
				Post("/dataset/load", h.DatasetLoad)
			r.With(enforcer.Require(authz.ObjectDataset, authz.ActionRead)).
				Get("/dataset/summary", h.DatasetSummary)

			r.With(enforcer.Require(authz.ObjectFeatures, authz.ActionWrite)).
				Post("/features/assemble", h.FeaturesAssemble)
			r.With(enforcer.Require(authz.ObjectFeatures, authz.ActionRead)).
				Get("/features/runs", h.FeatureRuns)

			r.With(enforcer.Require(authz.ObjectTraining, authz.ActionWrite)).
				Post("/train", h.Train)

			r.With(enforcer.Require(authz.ObjectRuns, authz.ActionRead)).
				Get("/runs", h.Runs)
			r.With(enforcer.Require(authz.ObjectRuns, authz.ActionRead)).
				Get("/runs/{runID}", h.RunDetail)
			r.With(enforcer.Require(authz.ObjectPredictions, authz.ActionRead)).
				Post("/runs/{runID}/predict", h.Predict)

			r.Get("/ws", events.Handler(hub))
		})
	})

	return r
}
