// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/pernocta/internal/models"
)

// Metric names accepted as primary ranking metric.
const (
	MetricMAE         = "mae"
	MetricRMSE        = "rmse"
	MetricR2          = "r2"
	MetricMAPE        = "mape"
	MetricWithin10Pct = "within_10pct"
	MetricWithin20Pct = "within_20pct"
)

// higherIsBetter maps each metric to its ranking direction. Error metrics
// rank ascending, accuracy metrics descending.
var higherIsBetter = map[string]bool{
	MetricMAE:         false,
	MetricRMSE:        false,
	MetricMAPE:        false,
	MetricR2:          true,
	MetricWithin10Pct: true,
	MetricWithin20Pct: true,
}

// Evaluate computes the full metric set over aligned predictions and
// targets.
//
// MAPE and the within-X accuracies are percentages. Rows with a zero target
// are excluded from the relative metrics (the relative error is undefined
// there), not from MAE, RMSE, or R².
func Evaluate(yTrue, yPred []float64) (models.ModelMetrics, error) {
	if len(yTrue) != len(yPred) {
		return models.ModelMetrics{}, fmt.Errorf("%w: %d targets vs %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return models.ModelMetrics{}, ErrEmptyMatrix
	}

	n := float64(len(yTrue))

	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= n

	var absSum, sqSum, totalSq float64
	var relSum float64
	var relN, within10, within20 int
	for i := range yTrue {
		diff := yPred[i] - yTrue[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		d := yTrue[i] - mean
		totalSq += d * d

		if yTrue[i] != 0 {
			rel := math.Abs(diff) / math.Abs(yTrue[i])
			relSum += rel
			relN++
			if rel <= 0.10 {
				within10++
			}
			if rel <= 0.20 {
				within20++
			}
		}
	}

	m := models.ModelMetrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
	}
	if totalSq > 0 {
		m.R2 = 1 - sqSum/totalSq
	}
	if relN > 0 {
		m.MAPE = 100 * relSum / float64(relN)
		m.Within10Pct = 100 * float64(within10) / float64(relN)
		m.Within20Pct = 100 * float64(within20) / float64(relN)
	}
	return m, nil
}

// metricValue extracts one named metric from the set.
func metricValue(m models.ModelMetrics, metric string) (float64, error) {
	switch metric {
	case MetricMAE:
		return m.MAE, nil
	case MetricRMSE:
		return m.RMSE, nil
	case MetricR2:
		return m.R2, nil
	case MetricMAPE:
		return m.MAPE, nil
	case MetricWithin10Pct:
		return m.Within10Pct, nil
	case MetricWithin20Pct:
		return m.Within20Pct, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}

// rankModels orders trained models by the primary metric; failed models
// sort last in name order so the ranking is total and stable.
func rankModels(reports []models.ModelReport, primaryMetric string) ([]string, error) {
	desc, ok := higherIsBetter[primaryMetric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, primaryMetric)
	}

	ranked := make([]models.ModelReport, len(reports))
	copy(ranked, reports)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Status == models.ModelTrained) != (b.Status == models.ModelTrained) {
			return a.Status == models.ModelTrained
		}
		if a.Status != models.ModelTrained {
			return a.Name < b.Name
		}
		if (a.Metrics == nil) != (b.Metrics == nil) {
			return a.Metrics != nil
		}
		if a.Metrics == nil {
			return a.Name < b.Name
		}
		av, _ := metricValue(*a.Metrics, primaryMetric)
		bv, _ := metricValue(*b.Metrics, primaryMetric)
		if av == bv {
			return a.Name < b.Name
		}
		if desc {
			return av > bv
		}
		return av < bv
	})

	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Name
	}
	return names, nil
}
