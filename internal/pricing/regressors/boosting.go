// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package regressors

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/tomtom215/pernocta/internal/config"
)

// Boosting is gradient boosting with squared loss: a mean baseline plus a
// sequence of shallow CART trees, each fitted to the current residuals and
// shrunk by the learning rate. Rounds are inherently sequential.
type Boosting struct {
	cfg  config.BoostingConfig
	seed int64

	baseline float64
	trees    []*regressionTree
	features int
	fitted   bool
}

// NewBoosting creates an unfitted boosting regressor.
func NewBoosting(cfg config.BoostingConfig, seed int64) *Boosting {
	return &Boosting{cfg: cfg, seed: seed}
}

// Name implements Regressor.
func (b *Boosting) Name() string { return NameGradientBoosting }

// Fit implements Regressor. Cancellation is checked every round; a canceled
// fit returns the error and leaves the regressor unfitted.
func (b *Boosting) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := validateTrainingData(X, y); err != nil {
		return err
	}

	n := len(X)
	b.features = len(X[0])

	var sum float64
	for _, v := range y {
		sum += v
	}
	b.baseline = sum / float64(n)

	// residuals double as the working targets; predictions carries the
	// running model output for residual updates.
	residuals := make([]float64, n)
	predictions := make([]float64, n)
	for i := range y {
		predictions[i] = b.baseline
		residuals[i] = y[i] - b.baseline
	}

	params := treeParams{
		maxDepth:        b.cfg.MaxDepth,
		minLeaf:         b.cfg.MinLeaf,
		featureFraction: 1,
	}
	rng := rand.New(rand.NewSource(b.seed))
	b.trees = make([]*regressionTree, 0, b.cfg.Rounds)

	for round := 0; round < b.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("boosting fit canceled at round %d: %w", round, err)
		}

		idx := subsample(n, b.cfg.Subsample, rng)
		tree := growTree(X, residuals, idx, params, rng)
		b.trees = append(b.trees, tree)

		for i := 0; i < n; i++ {
			predictions[i] += b.cfg.LearningRate * tree.predict(X[i])
			residuals[i] = y[i] - predictions[i]
		}
	}

	b.fitted = true
	return nil
}

// Predict implements Regressor.
func (b *Boosting) Predict(x []float64) (float64, error) {
	if !b.fitted {
		return 0, ErrNotFitted
	}
	if len(x) != b.features {
		return 0, fmt.Errorf("%w: got %d features, trained on %d", ErrDimensionMismatch, len(x), b.features)
	}
	pred := b.baseline
	for _, t := range b.trees {
		pred += b.cfg.LearningRate * t.predict(x)
	}
	return pred, nil
}

// Importances implements Regressor.
func (b *Boosting) Importances() []float64 {
	if !b.fitted {
		return nil
	}
	out := make([]float64, b.features)
	for _, t := range b.trees {
		t.accumulateImportances(out)
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// subsample draws a fraction of row indexes without replacement; fraction 1
// returns every index in order.
func subsample(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	k := int(fraction * float64(n))
	if k < 1 {
		k = 1
	}
	return rng.Perm(n)[:k]
}
