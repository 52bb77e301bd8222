// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"github.com/tomtom215/pernocta/internal/models"
)

// BaseEngine carries the structural listing attributes into the matrix:
// capacity, room counts, and room-type one-hots.
type BaseEngine struct {
	columns []string
}

// NewBaseEngine builds the engine. Room-type one-hot columns follow the
// stable order of models.RoomTypes.
func NewBaseEngine() *BaseEngine {
	columns := []string{
		"accommodates",
		"bedrooms",
		"bathrooms",
		"total_rooms",
		"bedroom_bathroom_ratio",
	}
	for _, rt := range models.RoomTypes() {
		columns = append(columns, "room_type_"+string(rt))
	}
	return &BaseEngine{columns: columns}
}

// Name implements Engine.
func (e *BaseEngine) Name() string { return "base" }

// Columns implements Engine.
func (e *BaseEngine) Columns() []string { return e.columns }

// Sentinel implements Engine.
func (e *BaseEngine) Sentinel(string) float64 { return 0 }

// Compute implements Engine.
func (e *BaseEngine) Compute(l *models.Listing, out models.FeatureVector) {
	out["accommodates"] = float64(l.Accommodates)
	out["bedrooms"] = l.Bedrooms
	out["bathrooms"] = l.Bathrooms
	out["total_rooms"] = l.Bedrooms + l.Bathrooms
	// The +0.1 keeps studio listings (zero bathrooms recorded) finite.
	out["bedroom_bathroom_ratio"] = l.Bedrooms / (l.Bathrooms + 0.1)

	for _, rt := range models.RoomTypes() {
		out["room_type_"+string(rt)] = boolFeature(l.RoomType == rt)
	}
}
