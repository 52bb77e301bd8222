// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/features"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pricing/regressors"
)

// EnsembleName is the ensemble's entry name in evaluation reports and
// rankings, alongside the individual regressor names.
const EnsembleName = "ensemble"

// TrainResult is one completed training run: the individually fitted
// models, the ensemble ready for predictions, and the evaluation report
// over the held-out split. When fewer than two regressors survive,
// Ensemble is nil but TrainedModels and Report still carry whatever
// fitted; individual models stay usable without an ensemble.
type TrainResult struct {
	RunID         string
	TrainedModels []*TrainedModel
	Ensemble      *Ensemble
	Report        *models.EvaluationReport
}

// Trainer runs the configured regressors over a feature matrix and builds
// the evaluated ensemble.
type Trainer struct {
	cfg config.TrainingConfig
}

// NewTrainer creates a trainer. The configuration is validated at load
// time; unknown regressor names never reach this point.
func NewTrainer(cfg config.TrainingConfig) *Trainer {
	return &Trainer{cfg: cfg}
}

// trainOutcome is one regressor's result, success or failure.
type trainOutcome struct {
	name     string
	model    *TrainedModel
	err      error
	duration time.Duration
}

// Train splits the matrix, fits every configured regressor concurrently,
// and assembles the evaluated ensemble.
//
// Individual regressor failures (including per-regressor timeouts) are
// recorded in the report and do not abort the run; the run fails only when
// fewer than two regressors survive.
func (t *Trainer) Train(ctx context.Context, matrix *models.FeatureMatrix) (*TrainResult, error) {
	runID := uuid.NewString()
	log := logging.With().Str("run_id", runID).Logger()

	trainSet, heldOut, err := Split(matrix, t.cfg.HeldOutFraction, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	target := t.cfg.TargetColumn
	if target == "" {
		target = features.TargetColumn
	}
	XTrain, yTrain, columns, err := featureView(trainSet, target)
	if err != nil {
		return nil, err
	}
	XTest, yTest, _, err := featureView(heldOut, target)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("train_rows", len(XTrain)).
		Int("test_rows", len(XTest)).
		Int("features", len(columns)).
		Strs("regressors", t.cfg.Regressors).
		Msg("training started")

	outcomes := t.fitAll(ctx, XTrain, yTrain, columns, log)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("training canceled: %w", err)
	}

	var trained []*TrainedModel
	for _, o := range outcomes {
		if o.err == nil {
			trained = append(trained, o.model)
		}
	}

	ensemble, err := NewEnsemble(trained)
	if err != nil {
		metrics.RecordTrainingRun("failed")
		// Too few survivors for an ensemble, but whatever fitted stays
		// usable; the result carries the models and their report
		// alongside the error.
		report, rerr := t.buildReport(runID, outcomes, nil, XTest, yTest)
		if rerr != nil {
			return nil, fmt.Errorf("%w (report: %v)", err, rerr)
		}
		log.Warn().
			Int("models", len(trained)).
			Msg("too few regressors for an ensemble")
		return &TrainResult{RunID: runID, TrainedModels: trained, Report: report}, err
	}

	if t.cfg.OptimizeWeights {
		if err := ensemble.OptimizeWeights(XTest, yTest, t.cfg.WeightTrials, t.cfg.Seed); err != nil {
			return nil, fmt.Errorf("weight optimization: %w", err)
		}
		log.Info().Floats64("weights", ensemble.Weights).Msg("ensemble weights optimized")
	}

	report, err := t.buildReport(runID, outcomes, ensemble, XTest, yTest)
	if err != nil {
		return nil, err
	}

	metrics.RecordTrainingRun("succeeded")
	log.Info().
		Strs("ranking", report.Ranking).
		Int("models", len(trained)).
		Msg("training completed")

	return &TrainResult{
		RunID:         runID,
		TrainedModels: trained,
		Ensemble:      ensemble,
		Report:        report,
	}, nil
}

// fitAll trains every configured regressor concurrently and returns
// outcomes in configuration order.
func (t *Trainer) fitAll(ctx context.Context, X [][]float64, y []float64, columns []string, log zerolog.Logger) []trainOutcome {
	outcomes := make([]trainOutcome, len(t.cfg.Regressors))

	var wg sync.WaitGroup
	for i, name := range t.cfg.Regressors {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = t.fitOne(ctx, name, X, y, columns)

			o := outcomes[i]
			if o.err != nil {
				reason := "fit_error"
				if errors.Is(o.err, context.DeadlineExceeded) {
					reason = "timeout"
				}
				metrics.RecordTrainingFailure(name, reason)
				log.Warn().Err(o.err).Str("regressor", name).Msg("regressor training failed")
				return
			}
			metrics.RecordTraining(name, o.duration)
			log.Info().
				Str("regressor", name).
				Int64("duration_ms", o.duration.Milliseconds()).
				Msg("regressor trained")
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

// fitOne trains a single regressor, applying the per-regressor timeout.
func (t *Trainer) fitOne(ctx context.Context, name string, X [][]float64, y []float64, columns []string) trainOutcome {
	reg, err := regressors.New(name, t.cfg)
	if err != nil {
		return trainOutcome{name: name, err: err}
	}

	fitCtx := ctx
	if t.cfg.RegressorTimeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, t.cfg.RegressorTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := reg.Fit(fitCtx, X, y); err != nil {
		return trainOutcome{name: name, err: err, duration: time.Since(start)}
	}
	return trainOutcome{
		name:     name,
		model:    &TrainedModel{Name: name, Regressor: reg, Columns: columns},
		duration: time.Since(start),
	}
}

// buildReport evaluates every trained model plus the ensemble on the
// held-out split and ranks them by the primary metric. A nil ensemble
// (too few survivors) yields a report with per-model entries only and
// zero weights.
func (t *Trainer) buildReport(runID string, outcomes []trainOutcome, ensemble *Ensemble, XTest [][]float64, yTest []float64) (*models.EvaluationReport, error) {
	reports := make([]models.ModelReport, 0, len(outcomes)+1)

	for _, o := range outcomes {
		if o.err != nil {
			reports = append(reports, models.ModelReport{
				Name:   o.name,
				Status: models.ModelFailed,
				Error:  o.err.Error(),
			})
			continue
		}
		m, err := evaluateModel(o.model, XTest, yTest)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", o.name, err)
		}
		var weight float64
		if ensemble != nil {
			weight = ensemble.Weight(o.name)
		}
		reports = append(reports, models.ModelReport{
			Name:        o.name,
			Status:      models.ModelTrained,
			Weight:      weight,
			Metrics:     &m,
			Importances: o.model.Importances(),
		})
	}

	if ensemble != nil {
		ensemblePreds, err := ensemble.predictAll(XTest)
		if err != nil {
			return nil, fmt.Errorf("evaluating ensemble: %w", err)
		}
		ensembleMetrics, err := Evaluate(yTest, ensemblePreds)
		if err != nil {
			return nil, err
		}
		reports = append(reports, models.ModelReport{
			Name:    EnsembleName,
			Status:  models.ModelTrained,
			Metrics: &ensembleMetrics,
		})
	}

	ranking, err := rankModels(reports, t.cfg.PrimaryMetric)
	if err != nil {
		return nil, err
	}

	return &models.EvaluationReport{
		RunID:         runID,
		PrimaryMetric: t.cfg.PrimaryMetric,
		Ranking:       ranking,
		Models:        reports,
		TestRows:      len(yTest),
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// evaluateModel scores one model over the held-out split.
func evaluateModel(m *TrainedModel, X [][]float64, y []float64) (models.ModelMetrics, error) {
	preds := make([]float64, len(X))
	for i, row := range X {
		p, err := m.Predict(row)
		if err != nil {
			return models.ModelMetrics{}, err
		}
		preds[i] = p
	}
	return Evaluate(y, preds)
}
