// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"github.com/tomtom215/pernocta/internal/geo"
	"github.com/tomtom215/pernocta/internal/models"
)

// DistanceDensityEngine emits distance_to_<category> and
// density_<category>_1km for every configured POI category.
//
// The column contract derives from the configured category list, not from
// what happened to load: categories with zero POIs for a city still emit
// their columns, distance filled with the cap sentinel and density with
// zero, so matrices stay shape-compatible across cities.
type DistanceDensityEngine struct {
	index      *geo.Index
	categories []string
	radiusKm   float64
	columns    []string
}

// NewDistanceDensityEngine builds the engine over a loaded POI index.
func NewDistanceDensityEngine(index *geo.Index, categories []string, densityRadiusKm float64) *DistanceDensityEngine {
	columns := make([]string, 0, 2*len(categories))
	for _, cat := range categories {
		columns = append(columns, "distance_to_"+cat, "density_"+cat+"_1km")
	}
	return &DistanceDensityEngine{
		index:      index,
		categories: categories,
		radiusKm:   densityRadiusKm,
		columns:    columns,
	}
}

// Name implements Engine.
func (e *DistanceDensityEngine) Name() string { return "distance_density" }

// Columns implements Engine.
func (e *DistanceDensityEngine) Columns() []string { return e.columns }

// Sentinel implements Engine. Missing distances impute to the search cap --
// "at least this far away" -- and densities to zero.
func (e *DistanceDensityEngine) Sentinel(column string) float64 {
	if len(column) > len("distance_to_") && column[:len("distance_to_")] == "distance_to_" {
		return e.index.CapKm()
	}
	return 0
}

// Compute implements Engine.
func (e *DistanceDensityEngine) Compute(l *models.Listing, out models.FeatureVector) {
	for _, cat := range e.categories {
		dist, ok := e.index.NearestDistance(l.Latitude, l.Longitude, cat)
		if !ok {
			// No POI within the cap. The cap value is the documented
			// sentinel, distinct from a true zero distance.
			dist = e.index.CapKm()
		}
		out["distance_to_"+cat] = dist
		out["density_"+cat+"_1km"] = float64(e.index.CountWithin(l.Latitude, l.Longitude, cat, e.radiusKm))
	}
}
