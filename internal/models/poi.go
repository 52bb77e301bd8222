// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package models

// POI is a geocoded point of interest used for distance and density
// features. The category set is configuration, not an enum: cities differ
// in which categories have data, and the feature column contract is derived
// from the configured list, not from what happened to load.
type POI struct {
	ID        int64   `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category"`
	Name      string  `json:"name,omitempty"`
}

// DefaultPOICategories is the default category list, matching the
// OpenStreetMap extraction the POI datasets come from.
func DefaultPOICategories() []string {
	return []string{
		"subway",
		"bus_station",
		"tourist_attraction",
		"beach",
		"viewpoint",
		"museum",
		"park",
		"restaurant",
		"bar",
		"cafe",
		"supermarket",
		"hospital",
		"shopping_mall",
	}
}
