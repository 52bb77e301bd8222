// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package pricing trains, ensembles, and evaluates the price regressors
// over an assembled feature matrix.
package pricing

import (
	"fmt"
	"sort"

	"github.com/tomtom215/pernocta/internal/models"
	"github.com/tomtom215/pernocta/internal/pricing/regressors"
)

// TrainedModel binds a fitted regressor to the feature column order it was
// trained on. Predictions must present features in exactly that order; the
// vector form rebuilds it by name.
type TrainedModel struct {
	Name      string
	Regressor regressors.Regressor
	Columns   []string
}

// Predict scores one feature row already in training column order.
func (m *TrainedModel) Predict(row []float64) (float64, error) {
	return m.Regressor.Predict(row)
}

// PredictVector scores a named feature vector. Every training column must
// be present; the caller (the feature assembler) owns sentinel imputation.
func (m *TrainedModel) PredictVector(vec models.FeatureVector) (float64, error) {
	row := make([]float64, len(m.Columns))
	for j, col := range m.Columns {
		v, ok := vec[col]
		if !ok {
			return 0, fmt.Errorf("feature vector missing column %q", col)
		}
		row[j] = v
	}
	return m.Regressor.Predict(row)
}

// Importances pairs the regressor's importance scores with column names,
// sorted descending by score.
func (m *TrainedModel) Importances() []models.FeatureImportance {
	scores := m.Regressor.Importances()
	if len(scores) != len(m.Columns) {
		return nil
	}
	out := make([]models.FeatureImportance, len(scores))
	for j, s := range scores {
		out[j] = models.FeatureImportance{Feature: m.Columns[j], Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
