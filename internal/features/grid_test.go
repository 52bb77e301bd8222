// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"math/rand"
	"testing"

	"github.com/tomtom215/pernocta/internal/models"
)

func TestGridAggregates(t *testing.T) {
	// Two listings in the same 0.01-degree cell, one in a neighboring cell.
	listings := []models.Listing{
		{ID: 1, Latitude: -23.5505, Longitude: -46.6333, Price: 100, Bedrooms: 1, Bathrooms: 1},
		{ID: 2, Latitude: -23.5509, Longitude: -46.6339, Price: 200, Bedrooms: 3, Bathrooms: 2},
		{ID: 3, Latitude: -23.5805, Longitude: -46.6833, Price: 900, Bedrooms: 5, Bathrooms: 4},
	}

	eng := NewGridEngine(0.01)
	if eng.Fitted() {
		t.Fatal("engine must not report fitted before Fit")
	}
	eng.Fit(listings)
	if !eng.Fitted() {
		t.Fatal("engine must report fitted after Fit")
	}
	if eng.NumCells() != 2 {
		t.Fatalf("NumCells = %d, want 2", eng.NumCells())
	}

	out := make(models.FeatureVector)
	eng.Compute(&listings[0], out)

	if !almostEqual(out["grid_avg_price"], 150) {
		t.Errorf("grid_avg_price = %v, want 150", out["grid_avg_price"])
	}
	if out["grid_listing_count"] != 2 {
		t.Errorf("grid_listing_count = %v, want 2", out["grid_listing_count"])
	}
	if !almostEqual(out["grid_price_median"], 150) {
		t.Errorf("grid_price_median = %v, want 150", out["grid_price_median"])
	}
	if !almostEqual(out["grid_avg_bedrooms"], 2) {
		t.Errorf("grid_avg_bedrooms = %v, want 2", out["grid_avg_bedrooms"])
	}
	if !almostEqual(out["grid_avg_bathrooms"], 1.5) {
		t.Errorf("grid_avg_bathrooms = %v, want 1.5", out["grid_avg_bathrooms"])
	}

	// Both members of a cell see identical aggregates.
	other := make(models.FeatureVector)
	eng.Compute(&listings[1], other)
	if other["grid_avg_price"] != out["grid_avg_price"] {
		t.Error("listings in the same cell must share aggregates")
	}

	// The isolated listing sees only itself.
	solo := make(models.FeatureVector)
	eng.Compute(&listings[2], solo)
	if solo["grid_avg_price"] != 900 || solo["grid_listing_count"] != 1 {
		t.Errorf("single-listing cell: avg=%v count=%v, want 900 and 1",
			solo["grid_avg_price"], solo["grid_listing_count"])
	}
	if solo["grid_price_stddev"] != 0 {
		t.Errorf("single-listing cell stddev = %v, want 0", solo["grid_price_stddev"])
	}
}

func TestGridOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	listings := make([]models.Listing, 50)
	for i := range listings {
		listings[i] = models.Listing{
			ID:        int64(i),
			Latitude:  -23.55 + rng.Float64()*0.005,
			Longitude: -46.63 + rng.Float64()*0.005,
			Price:     50 + rng.Float64()*450,
			Bedrooms:  float64(rng.Intn(4)),
			Bathrooms: float64(rng.Intn(3)),
		}
	}

	forward := NewGridEngine(0.01)
	forward.Fit(listings)

	shuffled := make([]models.Listing, len(listings))
	copy(shuffled, listings)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	reversed := NewGridEngine(0.01)
	reversed.Fit(shuffled)

	for i := range listings {
		a := make(models.FeatureVector)
		b := make(models.FeatureVector)
		forward.Compute(&listings[i], a)
		reversed.Compute(&listings[i], b)
		for _, col := range gridColumns {
			// Exact equality: aggregation sorts values first, so the
			// floating-point sums cannot depend on input order.
			if a[col] != b[col] {
				t.Fatalf("listing %d column %s: %v vs %v after shuffle",
					listings[i].ID, col, a[col], b[col])
			}
		}
	}
}

func TestGridUnknownCellWritesNothing(t *testing.T) {
	eng := NewGridEngine(0.01)
	eng.Fit([]models.Listing{
		{ID: 1, Latitude: -23.55, Longitude: -46.63, Price: 100},
	})

	stranger := models.Listing{ID: 99, Latitude: -22.90, Longitude: -43.20, Price: 300}
	out := make(models.FeatureVector)
	eng.Compute(&stranger, out)
	if len(out) != 0 {
		t.Errorf("unfitted cell must write nothing, got %v", out)
	}
}

func TestGridNegativeCoordinateBucketing(t *testing.T) {
	eng := NewGridEngine(0.01)
	// Floor division: -23.5505 and -23.5599 share a cell, -23.5601 does not.
	same := []models.Listing{
		{ID: 1, Latitude: -23.5505, Longitude: -46.6305, Price: 100},
		{ID: 2, Latitude: -23.5599, Longitude: -46.6399, Price: 200},
		{ID: 3, Latitude: -23.5601, Longitude: -46.6399, Price: 400},
	}
	eng.Fit(same)
	if eng.NumCells() != 2 {
		t.Fatalf("NumCells = %d, want 2", eng.NumCells())
	}

	out := make(models.FeatureVector)
	eng.Compute(&same[0], out)
	if out["grid_listing_count"] != 2 {
		t.Errorf("grid_listing_count = %v, want 2", out["grid_listing_count"])
	}
}
