// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/pernocta/internal/models"
)

// ReplaceListings replaces the listings table contents in one transaction.
// Ingest is an all-or-nothing snapshot swap: a failed load leaves the
// previous dataset intact.
func (db *DB) ReplaceListings(ctx context.Context, listings []models.Listing) (err error) {
	start := time.Now()
	defer func() { observe("replace", "listings", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("clear listings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO listings VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range listings {
		l := &listings[i]
		if _, err = stmt.ExecContext(ctx,
			l.ID, l.Latitude, l.Longitude, l.Price, string(l.RoomType),
			l.Accommodates, l.Bedrooms, l.Bathrooms,
			l.Rating,
			l.SubRatings.Accuracy, l.SubRatings.Cleanliness, l.SubRatings.Checkin,
			l.SubRatings.Communication, l.SubRatings.Location, l.SubRatings.Value,
			l.ReviewCount, l.ReviewsPerMonth, l.LastReview,
			l.Host.Superhost, l.Host.IdentityVerified, l.Host.ResponseRate,
			l.Host.Since, l.Host.ListingsCount,
			l.AmenitiesRaw, l.Availability30, l.Availability60, l.Availability90,
		); err != nil {
			return fmt.Errorf("insert listing %d: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

// Listings returns every stored listing in ID order.
func (db *DB) Listings(ctx context.Context) (_ []models.Listing, err error) {
	start := time.Now()
	defer func() { observe("select", "listings", start, err) }()

	stmt, err := db.prepared(ctx, `SELECT
		id, latitude, longitude, price, room_type,
		accommodates, bedrooms, bathrooms,
		rating, sub_accuracy, sub_cleanliness, sub_checkin,
		sub_communication, sub_location, sub_value,
		review_count, reviews_per_month, last_review,
		host_superhost, host_verified, host_response_rate,
		host_since, host_listings_count,
		amenities_raw, availability_30, availability_60, availability_90
		FROM listings ORDER BY id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Listing
	for rows.Next() {
		var l models.Listing
		var roomType string
		var lastReview, hostSince sql.NullTime
		if err = rows.Scan(
			&l.ID, &l.Latitude, &l.Longitude, &l.Price, &roomType,
			&l.Accommodates, &l.Bedrooms, &l.Bathrooms,
			&l.Rating, &l.SubRatings.Accuracy, &l.SubRatings.Cleanliness, &l.SubRatings.Checkin,
			&l.SubRatings.Communication, &l.SubRatings.Location, &l.SubRatings.Value,
			&l.ReviewCount, &l.ReviewsPerMonth, &lastReview,
			&l.Host.Superhost, &l.Host.IdentityVerified, &l.Host.ResponseRate,
			&hostSince, &l.Host.ListingsCount,
			&l.AmenitiesRaw, &l.Availability30, &l.Availability60, &l.Availability90,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.RoomType = models.RoomType(roomType)
		if lastReview.Valid {
			t := lastReview.Time
			l.LastReview = &t
		}
		if hostSince.Valid {
			t := hostSince.Time
			l.Host.Since = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DatasetSummary aggregates the stored dataset for the API.
type DatasetSummary struct {
	ListingCount int     `json:"listing_count"`
	POICount     int     `json:"poi_count"`
	AvgPrice     float64 `json:"avg_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	MedianPrice  float64 `json:"median_price"`
}

// Summary computes dataset aggregates in one scan each.
func (db *DB) Summary(ctx context.Context) (_ *DatasetSummary, err error) {
	start := time.Now()
	defer func() { observe("summary", "listings", start, err) }()

	var s DatasetSummary
	row := db.conn.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(AVG(price), 0),
		COALESCE(MIN(price), 0),
		COALESCE(MAX(price), 0),
		COALESCE(MEDIAN(price), 0)
		FROM listings`)
	if err = row.Scan(&s.ListingCount, &s.AvgPrice, &s.MinPrice, &s.MaxPrice, &s.MedianPrice); err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}

	if err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pois`).Scan(&s.POICount); err != nil {
		return nil, fmt.Errorf("scan poi count: %w", err)
	}
	return &s, nil
}

// ReplacePOIs replaces the POI table contents in one transaction.
func (db *DB) ReplacePOIs(ctx context.Context, pois []models.POI) (err error) {
	start := time.Now()
	defer func() { observe("replace", "pois", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM pois`); err != nil {
		return fmt.Errorf("clear pois: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pois VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range pois {
		p := &pois[i]
		if _, err = stmt.ExecContext(ctx, p.ID, p.Latitude, p.Longitude, p.Category, p.Name); err != nil {
			return fmt.Errorf("insert poi %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// POIs returns every stored POI.
func (db *DB) POIs(ctx context.Context) (_ []models.POI, err error) {
	start := time.Now()
	defer func() { observe("select", "pois", start, err) }()

	stmt, err := db.prepared(ctx, `SELECT id, latitude, longitude, category, name FROM pois ORDER BY id`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pois: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.POI
	for rows.Next() {
		var p models.POI
		if err = rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.Category, &p.Name); err != nil {
			return nil, fmt.Errorf("scan poi: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
