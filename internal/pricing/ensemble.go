// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tomtom215/pernocta/internal/models"
)

// Ensemble is a weighted average over successfully trained models. Weights
// always sum to 1; construction and reweighting both normalize.
type Ensemble struct {
	Models  []*TrainedModel
	Weights []float64

	// Columns is the shared training column order of every member.
	Columns []string
}

// NewEnsemble builds a uniform-weight ensemble. At least two models are
// required; a smaller set is a training failure, not a degraded ensemble.
func NewEnsemble(trained []*TrainedModel) (*Ensemble, error) {
	if len(trained) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientModels, len(trained))
	}
	weights := make([]float64, len(trained))
	for i := range weights {
		weights[i] = 1 / float64(len(trained))
	}
	return &Ensemble{
		Models:  trained,
		Weights: weights,
		Columns: trained[0].Columns,
	}, nil
}

// SetWeights replaces the member weights, normalizing so they sum to 1.
func (e *Ensemble) SetWeights(weights []float64) error {
	if len(weights) != len(e.Models) {
		return fmt.Errorf("%w: %d weights for %d models", ErrWeightCount, len(weights), len(e.Models))
	}
	var total float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("invalid weight %v", w)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("weights sum to zero")
	}
	e.Weights = make([]float64, len(weights))
	for i, w := range weights {
		e.Weights[i] = w / total
	}
	return nil
}

// Weight returns the normalized weight of a member by name, 0 for
// non-members.
func (e *Ensemble) Weight(name string) float64 {
	for i, m := range e.Models {
		if m.Name == name {
			return e.Weights[i]
		}
	}
	return 0
}

// Predict returns the weighted-average prediction for one feature row.
func (e *Ensemble) Predict(row []float64) (float64, error) {
	if len(e.Models) == 0 {
		return 0, ErrNoModels
	}
	var sum float64
	for i, m := range e.Models {
		pred, err := m.Predict(row)
		if err != nil {
			return 0, fmt.Errorf("model %s: %w", m.Name, err)
		}
		sum += e.Weights[i] * pred
	}
	return sum, nil
}

// PredictVector returns the weighted-average prediction for a named vector.
func (e *Ensemble) PredictVector(vec models.FeatureVector) (float64, error) {
	if len(e.Models) == 0 {
		return 0, ErrNoModels
	}
	var sum float64
	for i, m := range e.Models {
		pred, err := m.PredictVector(vec)
		if err != nil {
			return 0, fmt.Errorf("model %s: %w", m.Name, err)
		}
		sum += e.Weights[i] * pred
	}
	return sum, nil
}

// predictAll scores every row of X.
func (e *Ensemble) predictAll(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		pred, err := e.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}

// OptimizeWeights tunes member weights by seeded random search, scored by
// MAE on the validation set. The uniform weighting is trial zero, so the
// search can never do worse than the default it replaces.
func (e *Ensemble) OptimizeWeights(Xval [][]float64, yVal []float64, trials int, seed int64) error {
	if len(Xval) != len(yVal) {
		return fmt.Errorf("%w: %d rows vs %d targets", ErrLengthMismatch, len(Xval), len(yVal))
	}
	if len(Xval) == 0 {
		return ErrEmptyMatrix
	}

	// Score each member once; candidate weightings reuse the prediction
	// columns instead of re-predicting per trial.
	memberPreds := make([][]float64, len(e.Models))
	for i, m := range e.Models {
		preds := make([]float64, len(Xval))
		for r, row := range Xval {
			p, err := m.Predict(row)
			if err != nil {
				return fmt.Errorf("model %s: %w", m.Name, err)
			}
			preds[r] = p
		}
		memberPreds[i] = preds
	}

	score := func(weights []float64) float64 {
		var absSum float64
		for r := range yVal {
			var pred float64
			for i, w := range weights {
				pred += w * memberPreds[i][r]
			}
			absSum += math.Abs(pred - yVal[r])
		}
		return absSum / float64(len(yVal))
	}

	best := make([]float64, len(e.Weights))
	copy(best, e.Weights)
	bestMAE := score(best)

	rng := rand.New(rand.NewSource(seed))
	candidate := make([]float64, len(e.Models))
	for trial := 0; trial < trials; trial++ {
		var total float64
		for i := range candidate {
			candidate[i] = rng.Float64()
			total += candidate[i]
		}
		for i := range candidate {
			candidate[i] /= total
		}
		if mae := score(candidate); mae < bestMAE {
			bestMAE = mae
			copy(best, candidate)
		}
	}

	return e.SetWeights(best)
}
