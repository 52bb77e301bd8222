// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package main is the entry point for the Pernocta server.
//
// Pernocta is a self-hosted price intelligence pipeline for short-term
// rental listings. It ingests listing and point-of-interest CSVs into an
// embedded DuckDB store, assembles engineered feature matrices, trains an
// ensemble of regressors, and serves evaluation reports and nightly-price
// predictions over a REST API with live WebSocket progress events.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 (defaults, config file, environment)
//  2. Database: embedded DuckDB analytical store for listings and features
//  3. Registry: BadgerDB store for evaluation reports and model snapshots
//  4. Exporter (optional): PostgreSQL warehouse export behind a breaker
//  5. Pipeline: ingest/assemble/train/predict orchestration
//  6. Authentication and RBAC: JWT, Basic, or no-auth plus Casbin roles
//  7. Supervisor tree: registry GC, event hub, and HTTP server
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables (PERNOCTA_ prefix), a config
// file (config.yaml), and built-in defaults.
//
// For bearer authentication:
//   - PERNOCTA_AUTH_MODE=bearer
//   - PERNOCTA_AUTH_JWT_SECRET: 32+ character signing secret
//   - PERNOCTA_AUTH_BASIC_USER / PERNOCTA_AUTH_BASIC_PASSWORD_HASH:
//     login credentials (bcrypt hash)
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, waits for in-flight requests up to the
// configured shutdown timeout, then closes the registry and database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/pernocta/internal/api"
	"github.com/tomtom215/pernocta/internal/authz"
	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/database"
	"github.com/tomtom215/pernocta/internal/events"
	"github.com/tomtom215/pernocta/internal/export"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/pipeline"
	"github.com/tomtom215/pernocta/internal/registry"
	"github.com/tomtom215/pernocta/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("registry_path", cfg.Registry.Path).
		Str("auth_mode", string(cfg.Auth.Mode)).
		Bool("export_enabled", cfg.Export.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize analytical store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing analytical store")
		}
	}()
	logging.Info().Msg("Analytical store initialized")

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open model registry")
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing model registry")
		}
	}()
	logging.Info().Msg("Model registry opened")

	// Warehouse export is opt-in. A missing warehouse only disables
	// export; training and serving keep working.
	var exporter pipeline.Exporter
	if cfg.Export.Enabled {
		exp, err := export.New(cfg.Export)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect warehouse exporter")
		}
		defer func() {
			if err := exp.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing warehouse exporter")
			}
		}()
		if err := exp.EnsureSchema(context.Background()); err != nil {
			logging.Fatal().Err(err).Msg("Failed to prepare warehouse schema")
		}
		exporter = exp
		logging.Info().Msg("Warehouse exporter connected")
	}

	hub := events.NewHub()
	svc := pipeline.New(cfg, db, reg, hub, exporter)

	auth, err := api.NewAuthenticator(cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid authentication configuration")
	}
	enforcer, err := authz.NewEnforcer(cfg.Auth.DefaultRole)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build RBAC enforcer")
	}

	handler := api.NewHandler(svc, db.Ping)
	router := api.NewRouter(cfg, handler, auth, enforcer, hub)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddStorageService(registry.NewGCService(reg, cfg.Registry))
	tree.AddMessagingService(hub)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Pernocta stopped gracefully")
}
