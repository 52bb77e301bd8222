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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
	"github.com/tomtom215/pernocta/internal/models"
)

// Listing CSV columns. Required columns abort the load when missing;
// everything else degrades to the zero value or a nil pointer.
const (
	colID           = "id"
	colLatitude     = "latitude"
	colLongitude    = "longitude"
	colPrice        = "price"
	colRoomType     = "room_type"
	colAccommodates = "accommodates"
	colBedrooms     = "bedrooms"
	colBathrooms    = "bathrooms"

	colRating        = "review_scores_rating"
	colSubAccuracy   = "review_scores_accuracy"
	colSubClean      = "review_scores_cleanliness"
	colSubCheckin    = "review_scores_checkin"
	colSubComm       = "review_scores_communication"
	colSubLocation   = "review_scores_location"
	colSubValue      = "review_scores_value"
	colReviewCount   = "number_of_reviews"
	colReviewsPerMon = "reviews_per_month"
	colLastReview    = "last_review"

	colHostSuperhost = "host_is_superhost"
	colHostVerified  = "host_identity_verified"
	colHostResponse  = "host_response_rate"
	colHostSince     = "host_since"
	colHostListings  = "calculated_host_listings_count"

	colAmenities = "amenities"
	colAvail30   = "availability_30"
	colAvail60   = "availability_60"
	colAvail90   = "availability_90"
)

// LoadListings reads and cleans a listings CSV file.
func LoadListings(ctx context.Context, path string, cfg config.DatasetConfig) ([]models.Listing, *IngestStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open listings: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("error closing listings file")
		}
	}()
	return ReadListings(ctx, f, cfg)
}

// ReadListings ingests listings from a CSV stream.
//
// Cleaning rules, applied per row:
//   - unparseable ID, coordinates, or price drop the row
//   - coordinates outside the configured bounds drop the row
//   - price must be positive and at most MaxPrice after sanitization
//   - duplicate IDs keep the first occurrence
//   - bedroom/bathroom counts above MaxRooms are capped in a second pass
//     with the median of the valid rows, not dropped
func ReadListings(ctx context.Context, r io.Reader, cfg config.DatasetConfig) ([]models.Listing, *IngestStats, error) {
	start := time.Now()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	normalizeHeader(header)
	cols := indexHeader(header)
	if err := cols.require(colID, colLatitude, colLongitude, colPrice); err != nil {
		return nil, nil, err
	}

	stats := newIngestStats()
	seen := make(map[int64]struct{})
	var listings []models.Listing

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("ingest canceled: %w", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed CSV row; count and continue.
			stats.TotalRows++
			stats.drop(DropShortRow)
			continue
		}
		stats.TotalRows++

		l, reason := parseListing(record, cols, cfg)
		if reason != "" {
			stats.drop(reason)
			continue
		}
		if _, dup := seen[l.ID]; dup {
			stats.drop(DropDuplicateID)
			continue
		}
		seen[l.ID] = struct{}{}
		listings = append(listings, l)
		stats.Accepted++

		if cfg.ProgressEvery > 0 && stats.TotalRows%cfg.ProgressEvery == 0 {
			logging.Info().
				Int("rows", stats.TotalRows).
				Int("accepted", stats.Accepted).
				Msg("listings ingest progress")
		}
	}

	if len(listings) == 0 {
		return nil, stats, ErrEmptyDataset
	}

	stats.RoomsCapped = capRoomCounts(listings, float64(cfg.MaxRooms))

	metrics.RecordIngest("listings", "accepted", stats.Accepted)
	metrics.RecordIngest("listings", "dropped", stats.DroppedTotal())
	metrics.RecordIngestDuration("listings", time.Since(start))
	logging.Info().
		Int("rows", stats.TotalRows).
		Int("accepted", stats.Accepted).
		Int("dropped", stats.DroppedTotal()).
		Int("rooms_capped", stats.RoomsCapped).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("listings ingest completed")

	return listings, stats, nil
}

// parseListing converts one CSV record, returning a drop reason for
// unusable rows.
func parseListing(record []string, cols columnIndex, cfg config.DatasetConfig) (models.Listing, string) {
	id, err := strconv.ParseInt(strings.TrimSpace(cols.field(record, colID)), 10, 64)
	if err != nil || id <= 0 {
		return models.Listing{}, DropBadID
	}

	lat, latErr := strconv.ParseFloat(cols.field(record, colLatitude), 64)
	lon, lonErr := strconv.ParseFloat(cols.field(record, colLongitude), 64)
	if latErr != nil || lonErr != nil ||
		lat < cfg.LatMin || lat > cfg.LatMax ||
		lon < cfg.LonMin || lon > cfg.LonMax {
		return models.Listing{}, DropBadCoords
	}

	price, err := ParsePrice(cols.field(record, colPrice))
	if err != nil || price <= 0 || price > cfg.MaxPrice {
		return models.Listing{}, DropBadPrice
	}

	l := models.Listing{
		ID:           id,
		Latitude:     lat,
		Longitude:    lon,
		Price:        price,
		RoomType:     models.NormalizeRoomType(cols.field(record, colRoomType)),
		Accommodates: parseIntField(cols.field(record, colAccommodates)),
		Bedrooms:     parseFloatField(cols.field(record, colBedrooms)),
		Bathrooms:    parseFloatField(cols.field(record, colBathrooms)),

		Rating: parseOptionalFloat(cols.field(record, colRating)),
		SubRatings: models.SubRatings{
			Accuracy:      parseOptionalFloat(cols.field(record, colSubAccuracy)),
			Cleanliness:   parseOptionalFloat(cols.field(record, colSubClean)),
			Checkin:       parseOptionalFloat(cols.field(record, colSubCheckin)),
			Communication: parseOptionalFloat(cols.field(record, colSubComm)),
			Location:      parseOptionalFloat(cols.field(record, colSubLocation)),
			Value:         parseOptionalFloat(cols.field(record, colSubValue)),
		},
		ReviewCount:     parseIntField(cols.field(record, colReviewCount)),
		ReviewsPerMonth: parseOptionalFloat(cols.field(record, colReviewsPerMon)),
		LastReview:      parseOptionalDate(cols.field(record, colLastReview)),

		Host: models.HostProfile{
			Superhost:        parseBoolFlag(cols.field(record, colHostSuperhost)),
			IdentityVerified: parseBoolFlag(cols.field(record, colHostVerified)),
			ResponseRate:     parseResponseRate(cols.field(record, colHostResponse)),
			Since:            parseOptionalDate(cols.field(record, colHostSince)),
			ListingsCount:    parseIntField(cols.field(record, colHostListings)),
		},

		AmenitiesRaw:   cols.field(record, colAmenities),
		Availability30: parseIntField(cols.field(record, colAvail30)),
		Availability60: parseIntField(cols.field(record, colAvail60)),
		Availability90: parseIntField(cols.field(record, colAvail90)),
	}
	return l, ""
}

// capRoomCounts replaces implausible bedroom/bathroom counts with the
// median of the plausible rows and returns how many listings were touched.
func capRoomCounts(listings []models.Listing, maxRooms float64) int {
	var validBedrooms, validBathrooms []float64
	for i := range listings {
		if listings[i].Bedrooms <= maxRooms {
			validBedrooms = append(validBedrooms, listings[i].Bedrooms)
		}
		if listings[i].Bathrooms <= maxRooms {
			validBathrooms = append(validBathrooms, listings[i].Bathrooms)
		}
	}
	medBedrooms := sortedMedian(validBedrooms)
	medBathrooms := sortedMedian(validBathrooms)

	var capped int
	for i := range listings {
		touched := false
		if listings[i].Bedrooms > maxRooms {
			listings[i].Bedrooms = medBedrooms
			touched = true
		}
		if listings[i].Bathrooms > maxRooms {
			listings[i].Bathrooms = medBathrooms
			touched = true
		}
		if touched {
			capped++
		}
	}
	return capped
}

func sortedMedian(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// normalizeHeader lowercases and trims header cells in place, including a
// UTF-8 BOM on the first cell.
func normalizeHeader(header []string) {
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}
}

// ParsePrice sanitizes a raw price cell: currency symbols and spaces are
// stripped, and both "1,234.56" and "1.234,56" conventions parse to the
// same value. The rightmost separator is taken as the decimal point when
// both appear.
func ParsePrice(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, fmt.Errorf("no numeric content in price %q", raw)
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European convention: dot groups thousands, comma is decimal.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A lone comma is a decimal separator when followed by one or two
		// digits, a thousands separator otherwise.
		if digits := len(s) - lastComma - 1; digits >= 1 && digits <= 2 && strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	return strconv.ParseFloat(s, 64)
}

func parseIntField(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseFloatField(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseOptionalFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "na") || strings.EqualFold(raw, "n/a") {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseOptionalDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// parseBoolFlag accepts the dataset's "t"/"f" convention plus common
// boolean spellings.
func parseBoolFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "t", "true", "yes", "1":
		return true
	default:
		return false
	}
}

// parseResponseRate parses "98%" or "0.98" style cells into a [0,1]
// fraction.
func parseResponseRate(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "na") || strings.EqualFold(raw, "n/a") {
		return nil
	}
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if percent || v > 1 {
		v /= 100
	}
	return &v
}
