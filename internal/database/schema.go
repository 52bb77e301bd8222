// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package database

// Schema statements, applied in order on every open. All DDL is idempotent
// so restarts land on the same schema without a migration table.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id BIGINT PRIMARY KEY,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		price DOUBLE NOT NULL,
		room_type VARCHAR NOT NULL,
		accommodates INTEGER NOT NULL DEFAULT 0,
		bedrooms DOUBLE NOT NULL DEFAULT 0,
		bathrooms DOUBLE NOT NULL DEFAULT 0,
		rating DOUBLE,
		sub_accuracy DOUBLE,
		sub_cleanliness DOUBLE,
		sub_checkin DOUBLE,
		sub_communication DOUBLE,
		sub_location DOUBLE,
		sub_value DOUBLE,
		review_count INTEGER NOT NULL DEFAULT 0,
		reviews_per_month DOUBLE,
		last_review DATE,
		host_superhost BOOLEAN NOT NULL DEFAULT FALSE,
		host_verified BOOLEAN NOT NULL DEFAULT FALSE,
		host_response_rate DOUBLE,
		host_since DATE,
		host_listings_count INTEGER NOT NULL DEFAULT 0,
		amenities_raw VARCHAR NOT NULL DEFAULT '',
		availability_30 INTEGER NOT NULL DEFAULT 0,
		availability_60 INTEGER NOT NULL DEFAULT 0,
		availability_90 INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS pois (
		id BIGINT NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		category VARCHAR NOT NULL,
		name VARCHAR NOT NULL DEFAULT ''
	)`,

	// Feature matrices stored per run: one row per listing, values as a
	// DOUBLE list aligned with the columns list on the runs row.
	`CREATE TABLE IF NOT EXISTS feature_runs (
		run_id VARCHAR PRIMARY KEY,
		columns VARCHAR NOT NULL,
		row_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS feature_rows (
		run_id VARCHAR NOT NULL,
		row_index INTEGER NOT NULL,
		listing_id BIGINT NOT NULL,
		vals VARCHAR NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_feature_rows_run ON feature_rows (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pois_category ON pois (category)`,
}

func (db *DB) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
