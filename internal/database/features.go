// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pernocta/internal/models"
)

// ErrRunNotFound reports a feature matrix lookup for an unknown run.
var ErrRunNotFound = errors.New("feature run not found")

// SaveFeatureMatrix persists an assembled matrix under a run ID. Row values
// serialize as JSON arrays; the column contract lives once on the run row.
func (db *DB) SaveFeatureMatrix(ctx context.Context, runID string, m *models.FeatureMatrix) (err error) {
	start := time.Now()
	defer func() { observe("insert", "feature_rows", start, err) }()

	columns, err := json.Marshal(m.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO feature_runs (run_id, columns, row_count) VALUES (?,?,?)`,
		runID, string(columns), m.NumRows(),
	); err != nil {
		return fmt.Errorf("insert feature run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feature_rows (run_id, row_index, listing_id, vals) VALUES (?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i, row := range m.Rows {
		vals, marshalErr := json.Marshal(row)
		if marshalErr != nil {
			err = fmt.Errorf("marshal row %d: %w", i, marshalErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, runID, i, m.ListingIDs[i], string(vals)); err != nil {
			return fmt.Errorf("insert feature row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadFeatureMatrix reads a stored matrix back by run ID.
func (db *DB) LoadFeatureMatrix(ctx context.Context, runID string) (_ *models.FeatureMatrix, err error) {
	start := time.Now()
	defer func() { observe("select", "feature_rows", start, err) }()

	var columnsJSON string
	var rowCount int
	err = db.conn.QueryRowContext(ctx,
		`SELECT columns, row_count FROM feature_runs WHERE run_id = ?`, runID,
	).Scan(&columnsJSON, &rowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query feature run: %w", err)
	}

	var columns []string
	if err = json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return nil, fmt.Errorf("unmarshal columns: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT listing_id, vals FROM feature_rows WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query feature rows: %w", err)
	}
	defer closeQuietly(rows)

	m := models.NewFeatureMatrix(columns, rowCount)
	for rows.Next() {
		var listingID int64
		var valsJSON string
		if err = rows.Scan(&listingID, &valsJSON); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		var vals []float64
		if err = json.Unmarshal([]byte(valsJSON), &vals); err != nil {
			return nil, fmt.Errorf("unmarshal row values: %w", err)
		}
		if err = m.AppendRow(listingID, vals); err != nil {
			return nil, err
		}
	}
	return m, rows.Err()
}

// FeatureRuns lists stored run IDs, newest first.
func (db *DB) FeatureRuns(ctx context.Context) (_ []string, err error) {
	start := time.Now()
	defer func() { observe("select", "feature_runs", start, err) }()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT run_id FROM feature_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query feature runs: %w", err)
	}
	defer closeQuietly(rows)

	var out []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
