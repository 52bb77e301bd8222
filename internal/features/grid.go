// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"math"
	"sort"

	"github.com/tomtom215/pernocta/internal/models"
)

// gridColumns is the grid engine's column contract.
var gridColumns = []string{
	"grid_avg_price",
	"grid_listing_count",
	"grid_price_median",
	"grid_price_stddev",
	"grid_avg_bedrooms",
	"grid_avg_bathrooms",
}

// gridCell identifies a fixed-size angular bucket.
type gridCell struct {
	X, Y int
}

// cellAggregates holds the reduce-phase output for one cell.
type cellAggregates struct {
	avgPrice     float64
	count        int
	medianPrice  float64
	stddevPrice  float64
	avgBedrooms  float64
	avgBathrooms float64
}

// GridEngine buckets listings into fixed-size spatial cells and joins
// per-cell aggregates back onto every member listing.
//
// It is the one engine with a cross-listing dependency: Fit must see the
// full listing set before any Compute call (two-phase map-then-reduce).
// Values within a cell are sorted before aggregation, so shuffling the
// input row order cannot change any aggregate.
//
// Known trade-off, preserved deliberately: a listing's own price is included
// in its cell average, so a single-listing cell receives the listing's own
// price as grid_avg_price. This leaks the target into a feature and
// flatters evaluation metrics accordingly; it is kept because the aggregate
// is defined as a neighborhood price level, and excluding self would make
// single-listing cells undefined.
type GridEngine struct {
	cellSizeDeg float64
	cells       map[gridCell]*cellAggregates
}

// NewGridEngine creates an unfitted grid engine.
func NewGridEngine(cellSizeDeg float64) *GridEngine {
	if cellSizeDeg <= 0 {
		cellSizeDeg = 0.01
	}
	return &GridEngine{cellSizeDeg: cellSizeDeg}
}

// Name implements Engine.
func (e *GridEngine) Name() string { return "grid" }

// Columns implements Engine.
func (e *GridEngine) Columns() []string { return gridColumns }

// Sentinel implements Engine.
func (e *GridEngine) Sentinel(string) float64 { return 0 }

// cellFor assigns a listing to its cell by floor division.
func (e *GridEngine) cellFor(lat, lon float64) gridCell {
	return gridCell{
		X: int(math.Floor(lon / e.cellSizeDeg)),
		Y: int(math.Floor(lat / e.cellSizeDeg)),
	}
}

// Fit buckets all listings and computes per-cell aggregates. Must run to
// completion before Compute; the assembler enforces this barrier.
func (e *GridEngine) Fit(listings []models.Listing) {
	type cellValues struct {
		prices    []float64
		bedrooms  []float64
		bathrooms []float64
	}

	// Map phase: bucket every listing.
	buckets := make(map[gridCell]*cellValues)
	for i := range listings {
		l := &listings[i]
		key := e.cellFor(l.Latitude, l.Longitude)
		vals, ok := buckets[key]
		if !ok {
			vals = &cellValues{}
			buckets[key] = vals
		}
		vals.prices = append(vals.prices, l.Price)
		vals.bedrooms = append(vals.bedrooms, l.Bedrooms)
		vals.bathrooms = append(vals.bathrooms, l.Bathrooms)
	}

	// Reduce phase: aggregate each cell. Sorting first makes the floating
	// sums independent of input row order.
	e.cells = make(map[gridCell]*cellAggregates, len(buckets))
	for key, vals := range buckets {
		sort.Float64s(vals.prices)
		sort.Float64s(vals.bedrooms)
		sort.Float64s(vals.bathrooms)

		e.cells[key] = &cellAggregates{
			avgPrice:     mean(vals.prices),
			count:        len(vals.prices),
			medianPrice:  median(vals.prices),
			stddevPrice:  sampleStddev(vals.prices),
			avgBedrooms:  mean(vals.bedrooms),
			avgBathrooms: mean(vals.bathrooms),
		}
	}
}

// Fitted reports whether Fit has run.
func (e *GridEngine) Fitted() bool { return e.cells != nil }

// NumCells returns the number of occupied cells after Fit.
func (e *GridEngine) NumCells() int { return len(e.cells) }

// Compute implements Engine. Listings outside every fitted cell (possible
// when scoring a listing unseen at fit time) fall back to sentinels via the
// assembler by writing nothing.
func (e *GridEngine) Compute(l *models.Listing, out models.FeatureVector) {
	agg, ok := e.cells[e.cellFor(l.Latitude, l.Longitude)]
	if !ok {
		return
	}
	out["grid_avg_price"] = agg.avgPrice
	out["grid_listing_count"] = float64(agg.count)
	out["grid_price_median"] = agg.medianPrice
	out["grid_price_stddev"] = agg.stddevPrice
	out["grid_avg_bedrooms"] = agg.avgBedrooms
	out["grid_avg_bathrooms"] = agg.avgBathrooms
}

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// median returns the middle value of a sorted slice, 0 when empty.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// sampleStddev returns the sample standard deviation, 0 for fewer than two
// values.
func sampleStddev(vals []float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
