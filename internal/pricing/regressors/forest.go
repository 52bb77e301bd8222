// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package regressors

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/tomtom215/pernocta/internal/config"
)

// Forest is a random forest regressor: bagged CART trees with per-split
// feature subsampling, predictions averaged across trees.
//
// Each tree owns a generator seeded from (seed, tree index), so the model
// is identical across runs no matter how the training goroutines schedule.
type Forest struct {
	cfg  config.ForestConfig
	seed int64

	trees    []*regressionTree
	features int
	fitted   bool
}

// NewForest creates an unfitted forest.
func NewForest(cfg config.ForestConfig, seed int64) *Forest {
	return &Forest{cfg: cfg, seed: seed}
}

// Name implements Regressor.
func (f *Forest) Name() string { return NameRandomForest }

// Fit implements Regressor. Trees are independent and train across a
// worker pool.
func (f *Forest) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := validateTrainingData(X, y); err != nil {
		return err
	}

	f.features = len(X[0])
	f.trees = make([]*regressionTree, f.cfg.Trees)

	params := treeParams{
		maxDepth:        f.cfg.MaxDepth,
		minLeaf:         f.cfg.MinLeaf,
		featureFraction: f.cfg.FeatureFraction,
	}

	workers := runtime.NumCPU()
	if workers > f.cfg.Trees {
		workers = f.cfg.Trees
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				rng := rand.New(rand.NewSource(f.seed + int64(t)))
				idx := bootstrapSample(len(X), rng)
				f.trees[t] = growTree(X, y, idx, params, rng)
			}
		}()
	}

	for t := 0; t < f.cfg.Trees; t++ {
		if ctx.Err() != nil {
			break
		}
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("forest fit canceled: %w", err)
	}
	f.fitted = true
	return nil
}

// Predict implements Regressor.
func (f *Forest) Predict(x []float64) (float64, error) {
	if !f.fitted {
		return 0, ErrNotFitted
	}
	if len(x) != f.features {
		return 0, fmt.Errorf("%w: got %d features, trained on %d", ErrDimensionMismatch, len(x), f.features)
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees)), nil
}

// Importances implements Regressor.
func (f *Forest) Importances() []float64 {
	if !f.fitted {
		return nil
	}
	out := make([]float64, f.features)
	for _, t := range f.trees {
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

// bootstrapSample draws n indexes with replacement.
func bootstrapSample(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}
