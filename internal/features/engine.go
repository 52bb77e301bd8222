// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package features implements the feature-engineering engines and the
// assembler that merges their outputs into one matrix per run.
//
// Engines are independent per listing with two exceptions: the grid engine
// requires a fit phase over the whole listing set before any per-listing
// computation (two-phase map-then-reduce, so aggregates are order
// independent), and the scores engine reads distance columns written by the
// distance engine earlier in the pipeline order.
//
// Each engine declares its output columns up front. The assembler validates
// that no two engines claim the same column before any computation runs,
// turning a late runtime surprise into a configuration-time error.
package features

import (
	"github.com/tomtom215/pernocta/internal/models"
)

// Engine computes a fixed set of feature columns for one listing.
//
// Compute writes into out, which may already contain columns from engines
// earlier in the pipeline order; an engine must only write its own declared
// columns. Implementations must be safe for concurrent Compute calls across
// listings once constructed (and fitted, for the grid engine).
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Columns declares the engine's output columns in stable order.
	Columns() []string

	// Sentinel returns the imputation value the assembler uses when the
	// engine did not produce the column for a listing.
	Sentinel(column string) float64

	// Compute fills the engine's columns for one listing.
	Compute(l *models.Listing, out models.FeatureVector)
}

// boolFeature converts a flag to its numeric column value.
func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
