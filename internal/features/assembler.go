// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/geo"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
)

// TargetColumn is the training target's column name in the assembled
// matrix.
const TargetColumn = "price"

// Assembly errors. Column collisions are configuration errors: they abort
// before any computation runs.
var (
	ErrColumnCollision = errors.New("feature column collision")
	ErrNoListings      = errors.New("no listings to assemble")
)

// ProgressFunc receives per-engine assembly progress. Used by the events
// hub; nil disables reporting.
type ProgressFunc func(stage string, done, total int)

// Assembler merges engine outputs plus the target column into one feature
// matrix with a stable column contract.
//
// The engine pipeline order is fixed at construction: distance, scores
// (reads distance columns), grid (fitted over the full set first),
// temporal, review, amenity, base. Every listing in the input produces
// exactly one output row; columns an engine failed to produce are imputed
// with that engine's documented sentinel, never dropped.
type Assembler struct {
	engines []Engine
	grid    *GridEngine
	columns []string

	// owner maps each column to the engine that declared it, for sentinel
	// imputation.
	owner map[string]Engine

	workers  int
	progress ProgressFunc
}

// NewAssembler wires the engine pipeline for one run and validates the
// column contract. A collision between engine column sets is a
// configuration error, detected here before any computation.
func NewAssembler(cfg *config.PipelineConfig, index *geo.Index, ref time.Time) (*Assembler, error) {
	holidays, err := cfg.ParseHolidays()
	if err != nil {
		return nil, err
	}

	grid := NewGridEngine(cfg.GridCellSizeDeg)
	engines := []Engine{
		NewDistanceDensityEngine(index, cfg.POICategories, cfg.DensityRadiusKm),
		NewScoresEngine(cfg.POICategories, cfg.DistanceCapKm),
		grid,
		NewTemporalEngine(ref, holidays, cfg.HolidayToleranceDays),
		NewReviewEngine(cfg.Trust, cfg.Host, ref),
		NewAmenityEngine(cfg.Amenity),
		NewBaseEngine(),
	}

	columns := []string{TargetColumn}
	owner := make(map[string]Engine)
	for _, eng := range engines {
		for _, col := range eng.Columns() {
			if col == TargetColumn {
				return nil, fmt.Errorf("%w: engine %q declares the target column %q",
					ErrColumnCollision, eng.Name(), TargetColumn)
			}
			if prev, taken := owner[col]; taken {
				return nil, fmt.Errorf("%w: column %q declared by both %q and %q",
					ErrColumnCollision, col, prev.Name(), eng.Name())
			}
			owner[col] = eng
			columns = append(columns, col)
		}
	}

	return &Assembler{
		engines: engines,
		grid:    grid,
		columns: columns,
		owner:   owner,
		workers: runtime.NumCPU(),
	}, nil
}

// SetProgressFunc installs a progress observer.
func (a *Assembler) SetProgressFunc(fn ProgressFunc) { a.progress = fn }

// Columns returns the matrix column contract, target first.
func (a *Assembler) Columns() []string { return a.columns }

// Assemble builds the feature matrix for a listing set.
//
// Per-listing work is embarrassingly parallel and runs across a worker
// pool; the grid engine's fit phase is the one synchronization barrier and
// completes before any per-listing computation starts. Rows come out in
// input order regardless of worker scheduling.
func (a *Assembler) Assemble(ctx context.Context, listings []models.Listing) (*models.FeatureMatrix, error) {
	if len(listings) == 0 {
		return nil, ErrNoListings
	}
	start := time.Now()

	// Barrier: bucket and aggregate every listing before any row computes
	// grid features. Two-phase keeps aggregates order-independent.
	fitStart := time.Now()
	a.grid.Fit(listings)
	metrics.RecordEngineDuration(a.grid.Name(), time.Since(fitStart))
	a.report("grid_fit", len(listings), len(listings))

	rows := make([][]float64, len(listings))

	workers := a.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(listings) {
		workers = len(listings)
	}

	// Chunked workers over index ranges: deterministic row placement, no
	// channel per row.
	var wg sync.WaitGroup
	chunk := (len(listings) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(listings) {
			hi = len(listings)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return
				}
				rows[i] = a.computeRow(&listings[i])
			}
		}(lo, hi)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assembly canceled: %w", err)
	}

	matrix := models.NewFeatureMatrix(a.columns, len(listings))
	for i := range listings {
		if err := matrix.AppendRow(listings[i].ID, rows[i]); err != nil {
			return nil, err
		}
	}

	metrics.RecordAssembly(matrix.NumRows(), matrix.NumColumns(), time.Since(start))
	logging.Info().
		Int("rows", matrix.NumRows()).
		Int("columns", matrix.NumColumns()).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("feature matrix assembled")
	a.report("assembled", len(listings), len(listings))

	return matrix, nil
}

// computeRow runs the engine pipeline for one listing and projects the
// vector onto the column contract.
func (a *Assembler) computeRow(l *models.Listing) []float64 {
	vec := make(models.FeatureVector, len(a.columns))
	for _, eng := range a.engines {
		eng.Compute(l, vec)
	}

	row := make([]float64, len(a.columns))
	for j, col := range a.columns {
		if col == TargetColumn {
			row[j] = l.Price
			continue
		}
		if v, ok := vec[col]; ok {
			row[j] = v
		} else {
			// The engine skipped this column (e.g. a listing outside every
			// fitted grid cell); impute its documented sentinel.
			row[j] = a.owner[col].Sentinel(col)
		}
	}
	return row
}

// report emits progress when an observer is installed.
func (a *Assembler) report(stage string, done, total int) {
	if a.progress != nil {
		a.progress(stage, done, total)
	}
}

// AssembleFeatures is the package-level entry point: it indexes the POIs,
// wires the engine pipeline, and assembles the matrix in one call.
func AssembleFeatures(ctx context.Context, listings []models.Listing, pois []models.POI, cfg *config.PipelineConfig, ref time.Time) (*models.FeatureMatrix, error) {
	index := geo.NewIndex(pois, cfg.DistanceCapKm, geo.DefaultCellSizeKm)
	assembler, err := NewAssembler(cfg, index, ref)
	if err != nil {
		return nil, err
	}
	return assembler.Assemble(ctx, listings)
}
