// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
)

const (
	colPOICategory = "category"
	colPOIName     = "name"
)

// LoadPOIs reads and cleans a POI CSV file.
func LoadPOIs(ctx context.Context, path string, cfg config.DatasetConfig) ([]models.POI, *IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pois: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("error closing poi file")
		}
	}()
	return ReadPOIs(ctx, f, cfg)
}

// ReadPOIs ingests POIs from a CSV stream. Rows need valid coordinates
// within the dataset bounds and a non-empty category; categories are
// lowercased so they match the configured category list. IDs are optional
// and assigned sequentially when the column is absent.
func ReadPOIs(ctx context.Context, r io.Reader, cfg config.DatasetConfig) ([]models.POI, *IngestStats, error) {
	start := time.Now()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	normalizeHeader(header)
	cols := indexHeader(header)
	if err := cols.require(colLatitude, colLongitude, colPOICategory); err != nil {
		return nil, nil, err
	}

	stats := newIngestStats()
	var pois []models.POI

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("ingest canceled: %w", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.TotalRows++
			stats.drop(DropShortRow)
			continue
		}
		stats.TotalRows++

		lat, latErr := strconv.ParseFloat(cols.field(record, colLatitude), 64)
		lon, lonErr := strconv.ParseFloat(cols.field(record, colLongitude), 64)
		if latErr != nil || lonErr != nil ||
			lat < cfg.LatMin || lat > cfg.LatMax ||
			lon < cfg.LonMin || lon > cfg.LonMax {
			stats.drop(DropBadCoords)
			continue
		}

		category := strings.ToLower(strings.TrimSpace(cols.field(record, colPOICategory)))
		if category == "" {
			stats.drop(DropBadCategory)
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSpace(cols.field(record, colID)), 10, 64)
		if err != nil {
			id = int64(len(pois) + 1)
		}

		pois = append(pois, models.POI{
			ID:        id,
			Latitude:  lat,
			Longitude: lon,
			Category:  category,
			Name:      strings.TrimSpace(cols.field(record, colPOIName)),
		})
		stats.Accepted++
	}

	if len(pois) == 0 {
		return nil, stats, ErrEmptyDataset
	}

	metrics.RecordIngest("pois", "accepted", stats.Accepted)
	metrics.RecordIngest("pois", "dropped", stats.DroppedTotal())
	metrics.RecordIngestDuration("pois", time.Since(start))
	logging.Info().
		Int("rows", stats.TotalRows).
		Int("accepted", stats.Accepted).
		Int("dropped", stats.DroppedTotal()).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("poi ingest completed")

	return pois, stats, nil
}
