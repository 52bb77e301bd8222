// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/models"
)

// individualAmenities maps named amenity flags to their matching keywords.
// Matching is case-insensitive substring, so "Wireless Internet" satisfies
// the wifi flag via "internet".
var individualAmenities = []struct {
	name     string
	keywords []string
}{
	{"wifi", []string{"wifi", "internet"}},
	{"parking", []string{"parking"}},
	{"pool", []string{"pool"}},
	{"ac", []string{"air conditioning", "heating"}},
	{"kitchen", []string{"kitchen"}},
	{"washer", []string{"washer"}},
	{"tv", []string{"tv", "cable"}},
}

// AmenityEngine parses the free-text amenity serialization into category
// membership flags, per-category completeness ratios, named amenity flags,
// and a weighted aggregate score.
//
// Parsing fails soft: a malformed row yields the empty amenity set so one
// corrupt record never aborts a batch.
type AmenityEngine struct {
	cfg config.AmenityConfig

	// categories in sorted order; the column contract must not depend on
	// map iteration order.
	categories []string
	columns    []string
}

// NewAmenityEngine builds the engine from the configured category-synonym
// map and weights.
func NewAmenityEngine(cfg config.AmenityConfig) *AmenityEngine {
	categories := make([]string, 0, len(cfg.Categories))
	for cat := range cfg.Categories {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	columns := []string{"amenities_count"}
	for _, cat := range categories {
		columns = append(columns, "has_"+cat, cat+"_ratio")
	}
	for _, ia := range individualAmenities {
		columns = append(columns, "has_"+ia.name)
	}
	columns = append(columns, "amenity_score")

	return &AmenityEngine{cfg: cfg, categories: categories, columns: columns}
}

// Name implements Engine.
func (e *AmenityEngine) Name() string { return "amenity" }

// Columns implements Engine.
func (e *AmenityEngine) Columns() []string { return e.columns }

// Sentinel implements Engine.
func (e *AmenityEngine) Sentinel(string) float64 { return 0 }

// Compute implements Engine.
func (e *AmenityEngine) Compute(l *models.Listing, out models.FeatureVector) {
	amenities := ParseAmenities(l.AmenitiesRaw)
	out["amenities_count"] = float64(len(amenities))

	// Lowercase once; every match below is case-insensitive substring.
	lowered := make([]string, len(amenities))
	for i, a := range amenities {
		lowered[i] = strings.ToLower(a)
	}

	score := 0.0
	for _, cat := range e.categories {
		synonyms := e.cfg.Categories[cat]
		matched := 0
		for _, syn := range synonyms {
			if containsKeyword(lowered, strings.ToLower(syn)) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(synonyms))
		out["has_"+cat] = boolFeature(matched > 0)
		out[cat+"_ratio"] = ratio
		score += e.cfg.Weights[cat] * ratio
	}
	// Weights sum to 1 and each ratio is in [0,1], so the score is bounded.
	out["amenity_score"] = score

	for _, ia := range individualAmenities {
		has := false
		for _, kw := range ia.keywords {
			if containsKeyword(lowered, kw) {
				has = true
				break
			}
		}
		out["has_"+ia.name] = boolFeature(has)
	}
}

// containsKeyword reports whether any lowered amenity contains the keyword.
func containsKeyword(lowered []string, keyword string) bool {
	for _, item := range lowered {
		if strings.Contains(item, keyword) {
			return true
		}
	}
	return false
}

// ParseAmenities parses the raw amenity serialization into a list of
// amenity names.
//
// The source datasets serialize amenities as a JSON string array; older
// exports use a loosely bracketed comma-joined list. The parse is a tagged
// fallback chain: JSON first, then bracket-stripped comma splitting, and
// finally the empty set for anything unusable. No input aborts a batch.
func ParseAmenities(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return cleanAmenities(parsed)
	}

	// Fallback: strip brackets and quotes, split on commas.
	stripped := strings.NewReplacer("[", "", "]", "", `"`, "", "'", "").Replace(raw)
	parts := strings.Split(stripped, ",")
	return cleanAmenities(parts)
}

// cleanAmenities trims entries and drops empties.
func cleanAmenities(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
