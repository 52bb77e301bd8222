// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import (
	"fmt"
	"math/rand"

	"github.com/tomtom215/pernocta/internal/models"
)

// Split partitions a matrix into train and held-out views by a seeded
// shuffle. The same (matrix, fraction, seed) triple always yields the same
// partition, so runs are comparable across retrainings.
//
// Both partitions are guaranteed non-empty: the held-out side gets at least
// one row and never the whole set.
func Split(m *models.FeatureMatrix, heldOutFraction float64, seed int64) (train, heldOut *models.FeatureMatrix, err error) {
	n := m.NumRows()
	if n == 0 {
		return nil, nil, ErrEmptyMatrix
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: %d rows", ErrMatrixTooSmall, n)
	}
	if heldOutFraction <= 0 || heldOutFraction >= 1 {
		return nil, nil, fmt.Errorf("held-out fraction %v outside (0,1)", heldOutFraction)
	}

	heldOutSize := int(heldOutFraction * float64(n))
	if heldOutSize < 1 {
		heldOutSize = 1
	}
	if heldOutSize >= n {
		heldOutSize = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	train = models.NewFeatureMatrix(m.Columns, n-heldOutSize)
	heldOut = models.NewFeatureMatrix(m.Columns, heldOutSize)
	for pos, i := range perm {
		dst := train
		if pos < heldOutSize {
			dst = heldOut
		}
		if err := dst.AppendRow(m.ListingIDs[i], m.Rows[i]); err != nil {
			return nil, nil, err
		}
	}
	return train, heldOut, nil
}

// featureView separates a matrix into the regressor inputs: feature rows
// without the target column, the target vector, and the feature column
// names in row order.
func featureView(m *models.FeatureMatrix, target string) (X [][]float64, y []float64, columns []string, err error) {
	y, err = m.Column(target)
	if err != nil {
		return nil, nil, nil, err
	}
	features, err := m.Drop(target)
	if err != nil {
		return nil, nil, nil, err
	}
	return features.Rows, y, features.Columns, nil
}
