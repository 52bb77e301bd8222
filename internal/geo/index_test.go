// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package geo

import (
	"math"
	"sync"
	"testing"

	"github.com/tomtom215/pernocta/internal/models"
)

// Coordinates around central São Paulo, matching the bundled datasets.
const (
	spLat = -23.5505
	spLon = -46.6333
)

func testPOIs() []models.POI {
	return []models.POI{
		{ID: 1, Latitude: spLat, Longitude: spLon, Category: "beach"},
		{ID: 2, Latitude: spLat + 0.01, Longitude: spLon, Category: "beach"},
		{ID: 3, Latitude: spLat + 0.005, Longitude: spLon, Category: "subway"},
		{ID: 4, Latitude: spLat + 0.5, Longitude: spLon + 0.5, Category: "subway"},
		{ID: 5, Latitude: spLat + 2.0, Longitude: spLon + 2.0, Category: "museum"}, // far beyond cap
	}
}

func TestNearestDistanceColocated(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	dist, ok := ix.NearestDistance(spLat, spLon, "beach")
	if !ok {
		t.Fatal("NearestDistance() reported miss for co-located POI")
	}
	if dist != 0.0 {
		t.Errorf("NearestDistance() = %v, want 0.0 for identical coordinates", dist)
	}
}

func TestNearestDistanceKnownSeparation(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	// 0.005 degrees of latitude ~ 0.556 km
	dist, ok := ix.NearestDistance(spLat, spLon, "subway")
	if !ok {
		t.Fatal("NearestDistance() reported miss for nearby subway")
	}
	want := Haversine(spLat, spLon, spLat+0.005, spLon)
	if math.Abs(dist-want) > 1e-9 {
		t.Errorf("NearestDistance() = %v, want %v", dist, want)
	}
}

func TestNearestDistanceBeyondCap(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	// The only museum is ~300 km away.
	if _, ok := ix.NearestDistance(spLat, spLon, "museum"); ok {
		t.Error("NearestDistance() returned a hit beyond the cap")
	}
}

func TestNearestDistanceUnknownCategory(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	if _, ok := ix.NearestDistance(spLat, spLon, "hospital"); ok {
		t.Error("NearestDistance() returned a hit for a category with no POIs")
	}
}

func TestCountWithin(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	tests := []struct {
		name     string
		category string
		radiusKm float64
		want     int
	}{
		{"both beaches within 2km", "beach", 2.0, 2},
		{"one beach within 0.5km", "beach", 0.5, 1},
		{"no museum within 1km", "museum", 1.0, 0},
		{"unknown category", "hospital", 1.0, 0},
		{"zero radius", "beach", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ix.CountWithin(spLat, spLon, tt.category, tt.radiusKm)
			if got != tt.want {
				t.Errorf("CountWithin(%q, %v) = %d, want %d", tt.category, tt.radiusKm, got, tt.want)
			}
		})
	}
}

func TestNearestDistanceDeterministicTies(t *testing.T) {
	// Two POIs equidistant from the query point; repeated queries must
	// return the identical value.
	pois := []models.POI{
		{ID: 1, Latitude: spLat + 0.01, Longitude: spLon, Category: "bar"},
		{ID: 2, Latitude: spLat - 0.01, Longitude: spLon, Category: "bar"},
	}
	ix := NewIndex(pois, 10.0, DefaultCellSizeKm)

	first, ok := ix.NearestDistance(spLat, spLon, "bar")
	if !ok {
		t.Fatal("NearestDistance() missed")
	}
	for i := 0; i < 100; i++ {
		got, _ := ix.NearestDistance(spLat, spLon, "bar")
		if got != first {
			t.Fatalf("NearestDistance() = %v on iteration %d, want %v", got, i, first)
		}
	}
}

func TestNearestDistanceHighLatitude(t *testing.T) {
	// At 70 degrees north a degree of longitude spans only ~38 km, so a POI
	// 8.7 km west sits ~25 cells away in the grid while the latitude-based
	// span covers 11. The scan must widen east-west with latitude or the
	// POI goes unseen.
	const lat, lon = 70.0, 25.0
	pois := []models.POI{
		{ID: 1, Latitude: lat, Longitude: lon + 0.23, Category: "harbor"},
	}
	ix := NewIndex(pois, 10.0, DefaultCellSizeKm)

	want := Haversine(lat, lon, lat, lon+0.23)
	dist, ok := ix.NearestDistance(lat, lon, "harbor")
	if !ok {
		t.Fatalf("NearestDistance() missed a POI %.2f km away inside the cap", want)
	}
	if math.Abs(dist-want) > 1e-9 {
		t.Errorf("NearestDistance() = %v, want %v", dist, want)
	}

	if got := ix.CountWithin(lat, lon, "harbor", 10.0); got != 1 {
		t.Errorf("CountWithin() = %d, want 1", got)
	}
}

func TestConcurrentReads(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ix.NearestDistance(spLat, spLon, "beach")
				ix.CountWithin(spLat, spLon, "subway", 1.0)
			}
		}()
	}
	wg.Wait()
}

func TestHaversine(t *testing.T) {
	// São Paulo to Rio de Janeiro is roughly 360 km.
	d := Haversine(-23.5505, -46.6333, -22.9068, -43.1729)
	if d < 350 || d > 370 {
		t.Errorf("Haversine(SP, RJ) = %v km, want ~360 km", d)
	}

	if d := Haversine(10, 20, 10, 20); d != 0 {
		t.Errorf("Haversine(identical points) = %v, want 0", d)
	}
}

func TestIndexCounts(t *testing.T) {
	ix := NewIndex(testPOIs(), 10.0, DefaultCellSizeKm)

	if got := ix.Count("beach"); got != 2 {
		t.Errorf("Count(beach) = %d, want 2", got)
	}
	if got := ix.Count("hospital"); got != 0 {
		t.Errorf("Count(hospital) = %d, want 0", got)
	}
	if got := ix.Categories(); got != 3 {
		t.Errorf("Categories() = %d, want 3", got)
	}
}
