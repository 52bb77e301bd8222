// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package models

import "fmt"

// FeatureVector maps feature column names to numeric values for one listing.
// Engines emit partial vectors; the assembler merges them under the global
// column contract.
type FeatureVector map[string]float64

// FeatureMatrix is the assembled feature matrix for a run.
//
// Invariants maintained by the assembler:
//   - Columns is identical and identically ordered for every row
//   - len(ListingIDs) == len(Rows), and each row has len(Columns) values
//   - missing source signals are imputed to documented sentinels, never
//     dropped, so the shape is stable across cities and datasets
type FeatureMatrix struct {
	Columns    []string    `json:"columns"`
	ListingIDs []int64     `json:"listing_ids"`
	Rows       [][]float64 `json:"rows"`

	colIndex map[string]int
}

// NewFeatureMatrix allocates a matrix with the given column contract and
// row capacity.
func NewFeatureMatrix(columns []string, capacity int) *FeatureMatrix {
	m := &FeatureMatrix{
		Columns:    append([]string(nil), columns...),
		ListingIDs: make([]int64, 0, capacity),
		Rows:       make([][]float64, 0, capacity),
	}
	m.reindex()
	return m
}

func (m *FeatureMatrix) reindex() {
	m.colIndex = make(map[string]int, len(m.Columns))
	for i, c := range m.Columns {
		m.colIndex[c] = i
	}
}

// ColumnIndex returns the position of a column in the contract.
func (m *FeatureMatrix) ColumnIndex(name string) (int, bool) {
	if m.colIndex == nil || len(m.colIndex) != len(m.Columns) {
		m.reindex()
	}
	i, ok := m.colIndex[name]
	return i, ok
}

// AppendRow adds one listing's values. The slice must already be in column
// order; the assembler is the only writer.
func (m *FeatureMatrix) AppendRow(listingID int64, values []float64) error {
	if len(values) != len(m.Columns) {
		return fmt.Errorf("row for listing %d has %d values, contract has %d columns",
			listingID, len(values), len(m.Columns))
	}
	m.ListingIDs = append(m.ListingIDs, listingID)
	m.Rows = append(m.Rows, values)
	return nil
}

// NumRows returns the number of listings in the matrix.
func (m *FeatureMatrix) NumRows() int { return len(m.Rows) }

// NumColumns returns the width of the column contract.
func (m *FeatureMatrix) NumColumns() int { return len(m.Columns) }

// Column extracts a full column by name.
func (m *FeatureMatrix) Column(name string) ([]float64, error) {
	idx, ok := m.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in matrix contract", name)
	}
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// RowVector returns row i as a FeatureVector keyed by column name.
func (m *FeatureMatrix) RowVector(i int) FeatureVector {
	fv := make(FeatureVector, len(m.Columns))
	for j, c := range m.Columns {
		fv[c] = m.Rows[i][j]
	}
	return fv
}

// Select returns a copy of the matrix restricted to the named columns, in
// the given order. Used to project the training view without the target.
func (m *FeatureMatrix) Select(columns []string) (*FeatureMatrix, error) {
	idxs := make([]int, len(columns))
	for i, c := range columns {
		idx, ok := m.ColumnIndex(c)
		if !ok {
			return nil, fmt.Errorf("column %q not in matrix contract", c)
		}
		idxs[i] = idx
	}
	out := NewFeatureMatrix(columns, len(m.Rows))
	for r, row := range m.Rows {
		vals := make([]float64, len(idxs))
		for i, idx := range idxs {
			vals[i] = row[idx]
		}
		out.ListingIDs = append(out.ListingIDs, m.ListingIDs[r])
		out.Rows = append(out.Rows, vals)
	}
	return out, nil
}

// Drop returns a copy of the matrix without the named column.
func (m *FeatureMatrix) Drop(column string) (*FeatureMatrix, error) {
	if _, ok := m.ColumnIndex(column); !ok {
		return nil, fmt.Errorf("column %q not in matrix contract", column)
	}
	kept := make([]string, 0, len(m.Columns)-1)
	for _, c := range m.Columns {
		if c != column {
			kept = append(kept, c)
		}
	}
	return m.Select(kept)
}
