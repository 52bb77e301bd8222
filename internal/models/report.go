// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package models

import "time"

// ModelStatus reports whether a regressor completed training.
type ModelStatus string

const (
	ModelTrained ModelStatus = "trained"
	ModelFailed  ModelStatus = "failed"
)

// ModelMetrics holds the regression metrics for one model on a test split.
// MAPE and the within-percent fractions are expressed as percentages.
type ModelMetrics struct {
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	R2          float64 `json:"r2"`
	MAPE        float64 `json:"mape"`
	Within10Pct float64 `json:"within_10pct"`
	Within20Pct float64 `json:"within_20pct"`
}

// FeatureImportance pairs a feature column with its importance score.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// ModelReport is the per-model section of an evaluation report. Failed
// models appear with their failure reason so partial failures are never
// hidden from the caller.
type ModelReport struct {
	Name        string              `json:"name"`
	Status      ModelStatus         `json:"status"`
	Error       string              `json:"error,omitempty"`
	Weight      float64             `json:"weight,omitempty"` // ensemble weight, 0 for excluded models
	Metrics     *ModelMetrics       `json:"metrics,omitempty"`
	Importances []FeatureImportance `json:"importances,omitempty"`
}

// EvaluationReport is the ranked comparison across trained models and the
// ensemble. It is a derived artifact, recomputed on demand.
type EvaluationReport struct {
	RunID         string        `json:"run_id,omitempty"`
	PrimaryMetric string        `json:"primary_metric"`
	Ranking       []string      `json:"ranking"`
	Models        []ModelReport `json:"models"`
	TestRows      int           `json:"test_rows"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Model returns the report section for a named model.
func (r *EvaluationReport) Model(name string) (ModelReport, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelReport{}, false
}
