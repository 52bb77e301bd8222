// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package regressors implements the base price regressors the ensemble
// trains over: ridge regression, random forest, and gradient boosting.
//
// All regressors are deterministic for a fixed seed: the randomized ones
// derive per-component generators from the training seed, so retraining on
// identical data reproduces identical models regardless of goroutine
// scheduling.
package regressors

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/pernocta/internal/config"
)

// Regressor names accepted in training configuration.
const (
	NameRidge            = "ridge"
	NameRandomForest     = "random_forest"
	NameGradientBoosting = "gradient_boosting"
)

var (
	ErrNotFitted         = errors.New("regressor not fitted")
	ErrNoTrainingData    = errors.New("no training data")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrUnknownRegressor  = errors.New("unknown regressor")
)

// Regressor is a price model trained on a feature matrix.
//
// Fit must be called exactly once before Predict or Importances. Predict is
// safe for concurrent use after Fit returns. Fit honors context
// cancellation between internal iterations and returns ctx.Err() wrapped.
type Regressor interface {
	// Name returns the regressor's configured name.
	Name() string

	// Fit trains on rows X with targets y.
	Fit(ctx context.Context, X [][]float64, y []float64) error

	// Predict returns the price estimate for one feature row.
	Predict(x []float64) (float64, error)

	// Importances returns per-feature importance scores aligned with the
	// training columns, normalized to sum to 1 (all zeros when the model
	// carries no signal).
	Importances() []float64
}

// New constructs a regressor by configured name.
func New(name string, cfg config.TrainingConfig) (Regressor, error) {
	switch name {
	case NameRidge:
		return NewRidge(cfg.Ridge), nil
	case NameRandomForest:
		return NewForest(cfg.Forest, cfg.Seed), nil
	case NameGradientBoosting:
		return NewBoosting(cfg.Boosting, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegressor, name)
	}
}

// validateTrainingData applies the shared Fit preconditions.
func validateTrainingData(X [][]float64, y []float64) error {
	if len(X) == 0 || len(y) == 0 {
		return ErrNoTrainingData
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows vs %d targets", ErrDimensionMismatch, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return fmt.Errorf("%w: zero-width rows", ErrDimensionMismatch)
	}
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(row), width)
		}
	}
	return nil
}
