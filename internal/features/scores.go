// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"github.com/tomtom215/pernocta/internal/models"
)

// scoresColumns is the derived-scores engine's column contract.
var scoresColumns = []string{
	"accessibility_score",
	"transport_score",
}

// ScoresEngine derives accessibility and transport scores from the distance
// columns. It must run after the distance engine in the pipeline order; the
// assembler guarantees that ordering.
type ScoresEngine struct {
	categories       []string
	distanceCapKm    float64
	subwayConfigured bool
}

// NewScoresEngine builds the engine over the same category list as the
// distance engine.
func NewScoresEngine(categories []string, distanceCapKm float64) *ScoresEngine {
	subway := false
	for _, cat := range categories {
		if cat == "subway" {
			subway = true
			break
		}
	}
	return &ScoresEngine{
		categories:       categories,
		distanceCapKm:    distanceCapKm,
		subwayConfigured: subway,
	}
}

// Name implements Engine.
func (e *ScoresEngine) Name() string { return "scores" }

// Columns implements Engine.
func (e *ScoresEngine) Columns() []string { return scoresColumns }

// Sentinel implements Engine.
func (e *ScoresEngine) Sentinel(string) float64 { return 0 }

// Compute implements Engine. Distance misses already carry the cap sentinel
// in the vector, so the mean below degrades gracefully toward the cap when
// a city lacks whole categories.
func (e *ScoresEngine) Compute(_ *models.Listing, out models.FeatureVector) {
	var sum float64
	var n int
	for _, cat := range e.categories {
		if d, ok := out["distance_to_"+cat]; ok {
			sum += d
			n++
		}
	}

	avg := e.distanceCapKm
	if n > 0 {
		avg = sum / float64(n)
	}
	// Inverse distance: closer POIs score higher; +0.1 bounds the score.
	out["accessibility_score"] = 1 / (avg + 0.1)

	if e.subwayConfigured {
		subway, ok := out["distance_to_subway"]
		if !ok {
			subway = e.distanceCapKm
		}
		out["transport_score"] = 1 / (subway + 0.1)
	} else {
		out["transport_score"] = 0
	}
}
