// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package geo provides the read-only point-of-interest index backing the
// distance and density features.
//
// The index divides geographic space into cells so a query scans only cells
// near the query point instead of the full POI set: O(k) where k = POIs in
// nearby cells, versus O(n) for a linear scan. POIs are loaded once per city
// and never mutated afterwards, so queries need no locking and are safe for
// unsynchronized concurrent use across feature workers.
package geo

import (
	"math"

	"github.com/tomtom215/pernocta/internal/models"
)

// kmPerDegree approximates 1 degree of latitude (~111 km at the equator).
const kmPerDegree = 111.0

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// cellKey identifies a grid cell.
type cellKey struct {
	X, Y int
}

// Index answers nearest-distance and within-radius-count queries over a
// category-keyed POI set. Construct with NewIndex; the zero value is not
// usable.
type Index struct {
	cellSizeDeg float64
	capKm       float64

	// cells buckets POIs per category. Slice order within a cell is load
	// order, which keeps tie-breaking deterministic across runs.
	cells  map[string]map[cellKey][]models.POI
	counts map[string]int
}

// DefaultCellSizeKm balances cell scan width against cell count for
// city-scale POI sets.
const DefaultCellSizeKm = 1.0

// NewIndex builds an index over the given POIs.
//
// capKm bounds NearestDistance searches: a query with no POI of the category
// inside the cap reports a miss rather than a distance. cellSizeKm controls
// bucketing granularity; <= 0 uses DefaultCellSizeKm.
func NewIndex(pois []models.POI, capKm, cellSizeKm float64) *Index {
	if cellSizeKm <= 0 {
		cellSizeKm = DefaultCellSizeKm
	}
	if capKm <= 0 {
		capKm = 10.0
	}

	ix := &Index{
		cellSizeDeg: cellSizeKm / kmPerDegree,
		capKm:       capKm,
		cells:       make(map[string]map[cellKey][]models.POI),
		counts:      make(map[string]int),
	}

	for _, poi := range pois {
		key := ix.keyFor(poi.Latitude, poi.Longitude)
		byCell, ok := ix.cells[poi.Category]
		if !ok {
			byCell = make(map[cellKey][]models.POI)
			ix.cells[poi.Category] = byCell
		}
		byCell[key] = append(byCell[key], poi)
		ix.counts[poi.Category]++
	}

	return ix
}

// CapKm returns the configured nearest-distance search cap.
func (ix *Index) CapKm() float64 { return ix.capKm }

// Count returns the number of loaded POIs in a category. Zero means the
// category has no data for this city; feature columns still emit.
func (ix *Index) Count(category string) int { return ix.counts[category] }

// Categories returns the number of categories with at least one POI.
func (ix *Index) Categories() int { return len(ix.cells) }

// NearestDistance returns the great-circle distance in km to the closest POI
// of the category. The second return value is false when no POI of the
// category lies within the cap; callers must treat that as a distinct
// sentinel, never as distance zero.
func (ix *Index) NearestDistance(lat, lon float64, category string) (float64, bool) {
	byCell, ok := ix.cells[category]
	if !ok {
		return 0, false
	}

	dxMax, dyMax := ix.cellSpan(lat, ix.capKm)
	center := ix.keyFor(lat, lon)

	best := math.Inf(1)
	// Fixed dx/dy scan order plus load-ordered cell slices makes the result
	// deterministic when two POIs are equidistant: the first encountered
	// wins via strict less-than.
	for dx := -dxMax; dx <= dxMax; dx++ {
		for dy := -dyMax; dy <= dyMax; dy++ {
			cell, ok := byCell[cellKey{X: center.X + dx, Y: center.Y + dy}]
			if !ok {
				continue
			}
			for _, poi := range cell {
				d := Haversine(lat, lon, poi.Latitude, poi.Longitude)
				if d < best {
					best = d
				}
			}
		}
	}

	if best > ix.capKm {
		return 0, false
	}
	return best, true
}

// CountWithin returns the number of POIs of the category within radiusKm of
// the point. Zero when the category has no POIs in range.
func (ix *Index) CountWithin(lat, lon float64, category string, radiusKm float64) int {
	byCell, ok := ix.cells[category]
	if !ok || radiusKm <= 0 {
		return 0
	}

	dxMax, dyMax := ix.cellSpan(lat, radiusKm)
	center := ix.keyFor(lat, lon)

	count := 0
	for dx := -dxMax; dx <= dxMax; dx++ {
		for dy := -dyMax; dy <= dyMax; dy++ {
			cell, ok := byCell[cellKey{X: center.X + dx, Y: center.Y + dy}]
			if !ok {
				continue
			}
			for _, poi := range cell {
				if Haversine(lat, lon, poi.Latitude, poi.Longitude) <= radiusKm {
					count++
				}
			}
		}
	}
	return count
}

// cellSpan returns how many cells to scan east-west (dx) and north-south
// (dy) around the center cell to cover radiusKm. A degree of longitude
// shrinks by cos(latitude), so the east-west span widens toward the poles;
// the cosine is floored to keep the span finite at the poles themselves.
func (ix *Index) cellSpan(lat, radiusKm float64) (dxMax, dyMax int) {
	dyMax = int(math.Ceil(radiusKm/kmPerDegree/ix.cellSizeDeg)) + 1

	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dxMax = int(math.Ceil(radiusKm/(kmPerDegree*cosLat)/ix.cellSizeDeg)) + 1
	return dxMax, dyMax
}

// keyFor returns the cell containing a lat/lon coordinate.
func (ix *Index) keyFor(lat, lon float64) cellKey {
	// Normalize longitude to [-180, 180]
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return cellKey{
		X: int(math.Floor(lon / ix.cellSizeDeg)),
		Y: int(math.Floor(lat / ix.cellSizeDeg)),
	}
}

// Haversine returns the great-circle distance between two lat/lon points
// in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
