// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package models

import (
	"strings"
	"time"
)

// RoomType is the normalized room-type enumeration for a listing.
type RoomType string

const (
	RoomEntirePlace RoomType = "entire_place"
	RoomPrivate     RoomType = "private_room"
	RoomShared      RoomType = "shared_room"
	RoomHotel       RoomType = "hotel_room"
	RoomOther       RoomType = "other"
)

// RoomTypes returns all room types in the stable order used for one-hot
// feature columns. The order is part of the feature column contract.
func RoomTypes() []RoomType {
	return []RoomType{RoomEntirePlace, RoomPrivate, RoomShared, RoomHotel, RoomOther}
}

// NormalizeRoomType maps raw dataset room-type strings onto the enumeration.
// Unrecognized values become RoomOther rather than failing the row.
func NormalizeRoomType(raw string) RoomType {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "entire home/apt", "entire place", "entire_place":
		return RoomEntirePlace
	case "private room", "private_room":
		return RoomPrivate
	case "shared room", "shared_room":
		return RoomShared
	case "hotel room", "hotel_room":
		return RoomHotel
	default:
		return RoomOther
	}
}

// SubRatings holds the six guest sub-rating dimensions. Fields are pointers:
// a nil dimension means the listing has no score for it, which downstream
// consistency features must treat as unknown rather than zero.
type SubRatings struct {
	Accuracy      *float64 `json:"accuracy,omitempty"`
	Cleanliness   *float64 `json:"cleanliness,omitempty"`
	Checkin       *float64 `json:"checkin,omitempty"`
	Communication *float64 `json:"communication,omitempty"`
	Location      *float64 `json:"location,omitempty"`
	Value         *float64 `json:"value,omitempty"`
}

// Values returns the sub-rating values and whether all six are present.
// Consistency features are only meaningful over the complete set.
func (s SubRatings) Values() ([]float64, bool) {
	ptrs := []*float64{s.Accuracy, s.Cleanliness, s.Checkin, s.Communication, s.Location, s.Value}
	vals := make([]float64, 0, len(ptrs))
	for _, p := range ptrs {
		if p == nil {
			return nil, false
		}
		vals = append(vals, *p)
	}
	return vals, true
}

// HostProfile carries the host attributes used for host-quality scoring.
type HostProfile struct {
	Superhost        bool       `json:"superhost"`
	IdentityVerified bool       `json:"identity_verified"`
	ResponseRate     *float64   `json:"response_rate,omitempty"` // fraction in [0,1]
	Since            *time.Time `json:"since,omitempty"`
	ListingsCount    int        `json:"listings_count"`
}

// TenureYears returns the host's tenure in years at the reference date,
// or 0 when the host-since date is unknown.
func (h HostProfile) TenureYears(ref time.Time) float64 {
	if h.Since == nil || h.Since.After(ref) {
		return 0
	}
	return ref.Sub(*h.Since).Hours() / (24 * 365.25)
}

// Listing is a short-term rental listing as handed to the pipeline.
//
// Listings are created by the ingest layer and are immutable afterwards:
// feature engines read them and emit derived columns, never writing back.
// Optional signals are pointers so "absent" survives the trip through the
// feature assembler's sentinel imputation.
type Listing struct {
	ID        int64   `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Price is the nightly price, the training target.
	Price float64 `json:"price"`

	RoomType     RoomType `json:"room_type"`
	Accommodates int      `json:"accommodates"`
	Bedrooms     float64  `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`

	// Review signals
	Rating          *float64   `json:"rating,omitempty"` // overall, on the configured rating scale
	SubRatings      SubRatings `json:"sub_ratings"`
	ReviewCount     int        `json:"review_count"`
	ReviewsPerMonth *float64   `json:"reviews_per_month,omitempty"`
	LastReview      *time.Time `json:"last_review,omitempty"`

	Host HostProfile `json:"host"`

	// AmenitiesRaw is the unparsed amenity serialization from the source
	// dataset. Parsing happens in the amenity engine, soft-failing to an
	// empty set on malformed input.
	AmenitiesRaw string `json:"amenities_raw"`

	Availability30 int `json:"availability_30"`
	Availability60 int `json:"availability_60"`
	Availability90 int `json:"availability_90"`
}
