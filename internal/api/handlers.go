// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package api exposes the pipeline over a chi-routed JSON API: dataset
// loading and summary, feature assembly, ensemble training, run listing,
// prediction serving, health, Prometheus metrics, and WebSocket progress
// events.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pernocta/internal/database"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pipeline"
	"github.com/tomtom215/pernocta/internal/pricing"
	"github.com/tomtom215/pernocta/internal/registry"
)

// PipelineService is the pipeline surface the handlers call.
type PipelineService interface {
	LoadDataset(ctx context.Context, listingsPath, poisPath string) (*pipeline.LoadResult, error)
	Summary(ctx context.Context) (*database.DatasetSummary, error)
	AssembleFeatures(ctx context.Context) (*pipeline.AssembleResult, error)
	FeatureRuns(ctx context.Context) ([]string, error)
	Train(ctx context.Context, featureRunID string) (*pricing.TrainResult, error)
	Runs() ([]registry.RunSummary, error)
	Report(runID string) (*models.EvaluationReport, error)
	Predict(ctx context.Context, runID string, vec models.FeatureVector) (float64, error)
}

// Handler serves the API endpoints.
type Handler struct {
	svc   PipelineService
	ready func(ctx context.Context) error
}

// NewHandler creates the handler set. ready reports store readiness for the
// readiness probe; nil means always ready.
func NewHandler(svc PipelineService, ready func(ctx context.Context) error) *Handler {
	return &Handler{svc: svc, ready: ready}
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"}, time.Now())
}

// HealthReady is the readiness probe; it fails while the store is
// unreachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, codeInternal, "store not ready", err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"}, start)
}

type loadDatasetRequest struct {
	ListingsPath string `json:"listings_path" validate:"required"`
	POIsPath     string `json:"pois_path"`
}

// DatasetLoad ingests the listings CSV (and optionally POIs) named in the
// request body. Paths are resolved on the server.
func (h *Handler) DatasetLoad(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req loadDatasetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	result, err := h.svc.LoadDataset(r.Context(), req.ListingsPath, req.POIsPath)
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineBusy) {
			respondError(w, http.StatusConflict, codeBusy, err.Error(), nil)
			return
		}
		respondError(w, http.StatusBadRequest, codeDataset, "dataset load failed", err)
		return
	}
	respondData(w, http.StatusOK, result, start)
}

// DatasetSummary returns aggregate statistics over the stored dataset.
func (h *Handler) DatasetSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeDataset, "summary query failed", err)
		return
	}
	respondData(w, http.StatusOK, summary, start)
}

// FeaturesAssemble builds and persists the feature matrix over the stored
// dataset.
func (h *Handler) FeaturesAssemble(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := h.svc.AssembleFeatures(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrPipelineBusy):
			respondError(w, http.StatusConflict, codeBusy, err.Error(), nil)
		case errors.Is(err, pipeline.ErrNoDataset):
			respondError(w, http.StatusBadRequest, codeDataset, "no dataset loaded", nil)
		default:
			respondError(w, http.StatusInternalServerError, codeInternal, "feature assembly failed", err)
		}
		return
	}
	respondData(w, http.StatusOK, result, start)
}

// FeatureRuns lists stored feature matrix run IDs, newest first.
func (h *Handler) FeatureRuns(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	runs, err := h.svc.FeatureRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "feature run query failed", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"feature_runs": runs}, start)
}

type trainRequest struct {
	FeatureRunID string `json:"feature_run_id"`
}

// Train fits the configured ensemble on a stored feature matrix and returns
// the evaluation report.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req trainRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid request body", err)
			return
		}
	}

	result, err := h.svc.Train(r.Context(), req.FeatureRunID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrPipelineBusy):
			respondError(w, http.StatusConflict, codeBusy, err.Error(), nil)
		case errors.Is(err, pipeline.ErrNoFeatureRun):
			respondError(w, http.StatusBadRequest, codeDataset, "no assembled feature matrix", err)
		case errors.Is(err, pricing.ErrInsufficientModels):
			respondError(w, http.StatusInternalServerError, "INSUFFICIENT_MODELS", "fewer than two regressors trained successfully", err)
		default:
			respondError(w, http.StatusInternalServerError, codeTraining, "training failed", err)
		}
		return
	}
	respondData(w, http.StatusOK, result.Report, start)
}

// Runs lists stored training runs, newest first.
func (h *Handler) Runs(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	runs, err := h.svc.Runs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "run listing failed", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"runs": runs}, start)
}

// RunDetail returns the full evaluation report for one run.
func (h *Handler) RunDetail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	runID := chi.URLParam(r, "runID")

	report, err := h.svc.Report(runID)
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "run not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "run lookup failed", err)
		return
	}
	respondData(w, http.StatusOK, report, start)
}

type predictRequest struct {
	Features models.FeatureVector `json:"features" validate:"required"`
}

type predictResponse struct {
	RunID string  `json:"run_id"`
	Price float64 `json:"price"`
}

// Predict serves one price prediction from a stored run's ensemble.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	runID := chi.URLParam(r, "runID")

	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "invalid request body", err)
		return
	}
	if len(req.Features) == 0 {
		respondError(w, http.StatusBadRequest, codeValidation, "features are required", nil)
		return
	}

	price, err := h.svc.Predict(r.Context(), runID, req.Features)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrRunNotFound), errors.Is(err, registry.ErrNoModel):
			respondError(w, http.StatusNotFound, codeNotFound, "run not found", nil)
		default:
			respondError(w, http.StatusBadRequest, codeValidation, "prediction failed", err)
		}
		return
	}
	respondData(w, http.StatusOK, predictResponse{RunID: runID, Price: price}, start)
}
