// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package regressors

import (
	"context"
	"fmt"
	"math"

	"github.com/tomtom215/pernocta/internal/config"
)

// Ridge is L2-regularized linear regression solved in closed form:
// (X'X + alpha*I) w = X'y via Cholesky decomposition. Features are
// standardized internally so the penalty treats every column equally and
// the coefficients are comparable as importances; the intercept is fitted
// on the centered data and never penalized.
type Ridge struct {
	cfg config.RidgeConfig

	weights   []float64 // in standardized feature space
	intercept float64
	means     []float64
	scales    []float64
	fitted    bool
}

// NewRidge creates an unfitted ridge regressor.
func NewRidge(cfg config.RidgeConfig) *Ridge {
	return &Ridge{cfg: cfg}
}

// Name implements Regressor.
func (r *Ridge) Name() string { return NameRidge }

// Fit implements Regressor.
func (r *Ridge) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := validateTrainingData(X, y); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ridge fit canceled: %w", err)
	}

	n := len(X)
	p := len(X[0])

	r.means = make([]float64, p)
	r.scales = make([]float64, p)
	for j := 0; j < p; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += X[i][j]
		}
		r.means[j] = sum / float64(n)

		var ss float64
		for i := 0; i < n; i++ {
			d := X[i][j] - r.means[j]
			ss += d * d
		}
		r.scales[j] = math.Sqrt(ss / float64(n))
		if r.scales[j] == 0 {
			// Constant column: standardize to zero so it contributes
			// nothing beyond the intercept.
			r.scales[j] = 1
		}
	}

	var ySum float64
	for _, v := range y {
		ySum += v
	}
	yMean := ySum / float64(n)

	// Gram matrix and moment vector over standardized features.
	gram := make([][]float64, p)
	for j := range gram {
		gram[j] = make([]float64, p)
	}
	moment := make([]float64, p)

	z := make([]float64, p)
	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("ridge fit canceled: %w", err)
			}
		}
		for j := 0; j < p; j++ {
			z[j] = (X[i][j] - r.means[j]) / r.scales[j]
		}
		yc := y[i] - yMean
		for j := 0; j < p; j++ {
			moment[j] += z[j] * yc
			for k := j; k < p; k++ {
				gram[j][k] += z[j] * z[k]
			}
		}
	}
	for j := 0; j < p; j++ {
		for k := 0; k < j; k++ {
			gram[j][k] = gram[k][j]
		}
		gram[j][j] += r.cfg.Alpha
	}

	r.weights = solveCholesky(gram, moment)
	r.intercept = yMean
	r.fitted = true
	return nil
}

// Predict implements Regressor.
func (r *Ridge) Predict(x []float64) (float64, error) {
	if !r.fitted {
		return 0, ErrNotFitted
	}
	if len(x) != len(r.weights) {
		return 0, fmt.Errorf("%w: got %d features, trained on %d", ErrDimensionMismatch, len(x), len(r.weights))
	}
	pred := r.intercept
	for j, w := range r.weights {
		pred += w * (x[j] - r.means[j]) / r.scales[j]
	}
	return pred, nil
}

// Importances implements Regressor. Standardized coefficients make absolute
// magnitude a meaningful importance measure.
func (r *Ridge) Importances() []float64 {
	if !r.fitted {
		return nil
	}
	out := make([]float64, len(r.weights))
	var total float64
	for j, w := range r.weights {
		out[j] = math.Abs(w)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// solveCholesky solves A*x = b for symmetric positive-definite A.
// The ridge penalty on the diagonal keeps the system well-conditioned; a
// non-positive pivot is replaced with a tiny jitter rather than failing.
func solveCholesky(A [][]float64, b []float64) []float64 {
	n := len(b)

	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				if sum <= 0 {
					sum = 1e-10
				}
				L[i][j] = math.Sqrt(sum)
			} else if L[j][j] != 0 {
				L[i][j] = sum / L[j][j]
			}
		}
	}

	// Forward substitution: L*z = b.
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= L[i][j] * z[j]
		}
		if L[i][i] != 0 {
			z[i] = sum / L[i][i]
		}
	}

	// Back substitution: L'*x = z.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= L[j][i] * x[j]
		}
		if L[i][i] != 0 {
			x[i] = sum / L[i][i]
		}
	}

	return x
}
