// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package dataset ingests listing and POI CSV exports into the pipeline's
// model types, applying the cleaning rules the downstream feature engines
// assume: coordinate bounds, price sanitization, room-count capping, and
// deduplication.
//
// Ingest never aborts on a bad row. Rows that cannot be repaired are
// dropped and counted by reason, and the stats travel with the result so
// callers can judge dataset health.
package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrMissingColumn = errors.New("required column missing from header")
	ErrEmptyDataset  = errors.New("dataset contains no usable rows")
)

// Drop reasons recorded in IngestStats.Dropped.
const (
	DropBadID       = "bad_id"
	DropBadCoords   = "bad_coordinates"
	DropBadPrice    = "bad_price"
	DropBadCategory = "bad_category"
	DropDuplicateID = "duplicate_id"
	DropShortRow    = "short_row"
)

// IngestStats summarizes one ingest pass.
type IngestStats struct {
	TotalRows   int            `json:"total_rows"`
	Accepted    int            `json:"accepted"`
	RoomsCapped int            `json:"rooms_capped,omitempty"`
	Dropped     map[string]int `json:"dropped,omitempty"`
}

func newIngestStats() *IngestStats {
	return &IngestStats{Dropped: make(map[string]int)}
}

func (s *IngestStats) drop(reason string) {
	s.Dropped[reason]++
}

// DroppedTotal returns the total dropped row count across reasons.
func (s *IngestStats) DroppedTotal() int {
	var n int
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// columnIndex resolves required and optional header columns. Matching is
// exact on the normalized header; the caller normalizes beforehand.
type columnIndex map[string]int

func indexHeader(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func (c columnIndex) require(names ...string) error {
	for _, name := range names {
		if _, ok := c[name]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	return nil
}

// field returns the named column of a record, empty when the column is
// absent or the record is short.
func (c columnIndex) field(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
