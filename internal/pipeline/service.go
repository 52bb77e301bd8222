// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package pipeline orchestrates the stages behind the API: dataset ingest
// into DuckDB, feature assembly, ensemble training with registry
// persistence, warehouse export, and prediction serving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pernocta/internal/cache"
	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/database"
	"github.com/tomtom215/pernocta/internal/dataset"
	"github.com/tomtom215/pernocta/internal/events"
	"github.com/tomtom215/pernocta/internal/features"
	"github.com/tomtom215/pernocta/internal/geo"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pricing"
	"github.com/tomtom215/pernocta/internal/registry"
)

var (
	// ErrPipelineBusy is returned when a mutating stage is already running.
	ErrPipelineBusy = errors.New("pipeline: another operation is in progress")

	// ErrNoDataset is returned when a stage needs listings that were never
	// loaded.
	ErrNoDataset = errors.New("pipeline: no dataset loaded")

	// ErrNoFeatureRun is returned when training is requested before any
	// feature matrix exists.
	ErrNoFeatureRun = errors.New("pipeline: no assembled feature matrix")
)

// Restored ensembles are small, so the cache is sized for variety of
// runs rather than memory pressure.
const (
	ensembleCacheSize = 32
	ensembleCacheTTL  = 12 * time.Hour
)

// Service coordinates pipeline stages. Mutating stages (load, assemble,
// train) are serialized; reads and predictions run concurrently.
type Service struct {
	cfg      *config.Config
	db       *database.DB
	registry *registry.Registry
	hub      *events.Hub
	exporter Exporter

	// stageMu serializes mutating stages without queueing callers.
	stageMu sync.Mutex

	ensembles *cache.LRU[*pricing.Ensemble]
}

// Exporter is the warehouse sink the train stage pushes reports to. Nil
// disables export.
type Exporter interface {
	ExportReport(ctx context.Context, report *models.EvaluationReport) error
	ExportFeatures(ctx context.Context, runID string, m *models.FeatureMatrix) error
}

// New wires a pipeline service. exporter may be nil.
func New(cfg *config.Config, db *database.DB, reg *registry.Registry, hub *events.Hub, exporter Exporter) *Service {
	return &Service{
		cfg:       cfg,
		db:        db,
		registry:  reg,
		hub:       hub,
		exporter:  exporter,
		ensembles: cache.NewLRU[*pricing.Ensemble](ensembleCacheSize, ensembleCacheTTL),
	}
}

// acquire claims the mutating-stage lock without blocking.
func (s *Service) acquire() error {
	if !s.stageMu.TryLock() {
		return ErrPipelineBusy
	}
	return nil
}

// LoadResult reports one dataset load.
type LoadResult struct {
	ListingStats *dataset.IngestStats `json:"listings"`
	POIStats     *dataset.IngestStats `json:"pois,omitempty"`
}

// LoadDataset ingests the listings CSV (and optionally a POI CSV) and
// snapshots them into DuckDB.
func (s *Service) LoadDataset(ctx context.Context, listingsPath, poisPath string) (*LoadResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.stageMu.Unlock()

	listings, listingStats, err := dataset.LoadListings(ctx, listingsPath, s.cfg.Dataset)
	if err != nil {
		s.hub.BroadcastPipelineFailure("ingest", err)
		return nil, err
	}
	if err := s.db.ReplaceListings(ctx, listings); err != nil {
		s.hub.BroadcastPipelineFailure("ingest", err)
		return nil, fmt.Errorf("store listings: %w", err)
	}
	s.hub.BroadcastIngestProgress("listings", listingStats.TotalRows, listingStats.Accepted, listingStats.DroppedTotal())

	result := &LoadResult{ListingStats: listingStats}

	if poisPath != "" {
		pois, poiStats, err := dataset.LoadPOIs(ctx, poisPath, s.cfg.Dataset)
		if err != nil {
			s.hub.BroadcastPipelineFailure("ingest", err)
			return nil, err
		}
		if err := s.db.ReplacePOIs(ctx, pois); err != nil {
			s.hub.BroadcastPipelineFailure("ingest", err)
			return nil, fmt.Errorf("store POIs: %w", err)
		}
		s.hub.BroadcastIngestProgress("pois", poiStats.TotalRows, poiStats.Accepted, poiStats.DroppedTotal())
		result.POIStats = poiStats
	}

	logging.Info().
		Int("listings", listingStats.Accepted).
		Str("path", listingsPath).
		Msg("Dataset loaded")
	return result, nil
}

// Summary returns aggregate statistics over the stored dataset.
func (s *Service) Summary(ctx context.Context) (*database.DatasetSummary, error) {
	return s.db.Summary(ctx)
}

// AssembleResult reports one completed feature assembly.
type AssembleResult struct {
	FeatureRunID string   `json:"feature_run_id"`
	Rows         int      `json:"rows"`
	Columns      []string `json:"columns"`
}

// AssembleFeatures builds the feature matrix over the stored dataset and
// persists it under a fresh run ID.
func (s *Service) AssembleFeatures(ctx context.Context) (*AssembleResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.stageMu.Unlock()

	listings, err := s.db.Listings(ctx)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, ErrNoDataset
	}
	pois, err := s.db.POIs(ctx)
	if err != nil {
		return nil, err
	}

	index := geo.NewIndex(pois, s.cfg.Pipeline.DistanceCapKm, geo.DefaultCellSizeKm)
	assembler, err := features.NewAssembler(&s.cfg.Pipeline, index, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	assembler.SetProgressFunc(func(stage string, done, total int) {
		s.hub.BroadcastAssemblyStage(stage, done, total)
	})

	matrix, err := assembler.Assemble(ctx, listings)
	if err != nil {
		s.hub.BroadcastPipelineFailure("assembly", err)
		return nil, err
	}

	featureRunID := uuid.NewString()
	if err := s.db.SaveFeatureMatrix(ctx, featureRunID, matrix); err != nil {
		return nil, fmt.Errorf("persist feature matrix: %w", err)
	}

	logging.Info().
		Str("feature_run_id", featureRunID).
		Int("rows", matrix.NumRows()).
		Int("columns", matrix.NumColumns()).
		Msg("Feature matrix assembled")

	return &AssembleResult{
		FeatureRunID: featureRunID,
		Rows:         matrix.NumRows(),
		Columns:      matrix.Columns,
	}, nil
}

// FeatureRuns lists stored feature matrix run IDs, newest first.
func (s *Service) FeatureRuns(ctx context.Context) ([]string, error) {
	return s.db.FeatureRuns(ctx)
}

// Train fits the configured ensemble on a stored feature matrix. An empty
// featureRunID means the most recent one. The trained ensemble and its
// report are persisted to the registry and, when export is configured,
// pushed to the warehouse.
func (s *Service) Train(ctx context.Context, featureRunID string) (*pricing.TrainResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.stageMu.Unlock()

	if featureRunID == "" {
		runs, err := s.db.FeatureRuns(ctx)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, ErrNoFeatureRun
		}
		featureRunID = runs[0]
	}

	matrix, err := s.db.LoadFeatureMatrix(ctx, featureRunID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoFeatureRun, featureRunID)
		}
		return nil, err
	}

	result, err := pricing.NewTrainer(s.cfg.Pipeline.Training).Train(ctx, matrix)
	if err != nil {
		if errors.Is(err, pricing.ErrInsufficientModels) && result != nil {
			// The per-model report still tells the operator which
			// regressors failed and why; keep it inspectable.
			if serr := s.registry.SaveRun(result.Report, nil); serr != nil {
				logging.Warn().Err(serr).Str("run_id", result.RunID).Msg("Partial report save failed")
			}
		}
		s.hub.BroadcastPipelineFailure("training", err)
		return nil, err
	}

	for _, mr := range result.Report.Models {
		s.hub.BroadcastTrainingStatus(result.RunID, mr.Name, string(mr.Status), mr.Error)
	}

	snap, err := result.Ensemble.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot ensemble: %w", err)
	}
	if err := s.registry.SaveRun(result.Report, snap); err != nil {
		return nil, err
	}

	s.ensembles.Add(result.RunID, result.Ensemble)

	best := ""
	if len(result.Report.Ranking) > 0 {
		best = result.Report.Ranking[0]
	}
	s.hub.BroadcastEvaluationDone(result.RunID, result.Report.PrimaryMetric, best, result.Report.TestRows)

	if s.exporter != nil {
		// Export failures degrade to a warning; the run itself is already
		// persisted locally.
		if err := s.exporter.ExportReport(ctx, result.Report); err != nil {
			logging.Warn().Err(err).Str("run_id", result.RunID).Msg("Report export failed")
		}
		if err := s.exporter.ExportFeatures(ctx, featureRunID, matrix); err != nil {
			logging.Warn().Err(err).Str("feature_run_id", featureRunID).Msg("Feature export failed")
		}
	}

	return result, nil
}

// Runs lists stored training runs, newest first.
func (s *Service) Runs() ([]registry.RunSummary, error) {
	return s.registry.ListRuns()
}

// Report returns the evaluation report for one run.
func (s *Service) Report(runID string) (*models.EvaluationReport, error) {
	return s.registry.LoadReport(runID)
}

// Predict serves one price prediction from a stored run's ensemble.
func (s *Service) Predict(ctx context.Context, runID string, vec models.FeatureVector) (float64, error) {
	ensemble, err := s.ensemble(runID)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	price, err := ensemble.PredictVector(vec)
	if err != nil {
		return 0, err
	}
	metrics.RecordPrediction(pricing.EnsembleName, time.Since(start))
	return price, nil
}

// ensemble returns the cached ensemble for a run, loading it from the
// registry on first use.
func (s *Service) ensemble(runID string) (*pricing.Ensemble, error) {
	if e, ok := s.ensembles.Get(runID); ok {
		return e, nil
	}

	e, err := s.registry.LoadEnsemble(runID)
	if err != nil {
		return nil, err
	}

	s.ensembles.Add(runID, e)
	return e, nil
}
