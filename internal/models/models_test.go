// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package models

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeRoomType(t *testing.T) {
	tests := []struct {
		raw  string
		want RoomType
	}{
		{"Entire home/apt", RoomEntirePlace},
		{"entire place", RoomEntirePlace},
		{"Private room", RoomPrivate},
		{"private_room", RoomPrivate},
		{"Shared room", RoomShared},
		{"Hotel room", RoomHotel},
		{"Casa particular", RoomOther},
		{"", RoomOther},
		{"  Entire home/apt  ", RoomEntirePlace},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeRoomType(tt.raw); got != tt.want {
				t.Errorf("NormalizeRoomType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRoomTypesOrderStable(t *testing.T) {
	a := RoomTypes()
	b := RoomTypes()
	if len(a) != 5 {
		t.Fatalf("RoomTypes() returned %d entries, want 5", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("RoomTypes() order unstable at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestSubRatingsValues(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	t.Run("complete set", func(t *testing.T) {
		s := SubRatings{
			Accuracy:      f(4.8),
			Cleanliness:   f(4.9),
			Checkin:       f(5.0),
			Communication: f(4.7),
			Location:      f(4.6),
			Value:         f(4.5),
		}
		vals, ok := s.Values()
		if !ok {
			t.Fatal("Values() ok = false, want true")
		}
		if len(vals) != 6 {
			t.Errorf("Values() returned %d values, want 6", len(vals))
		}
		if vals[0] != 4.8 || vals[5] != 4.5 {
			t.Errorf("Values() order wrong: got %v", vals)
		}
	})

	t.Run("missing dimension", func(t *testing.T) {
		s := SubRatings{Accuracy: f(4.8)}
		if _, ok := s.Values(); ok {
			t.Error("Values() ok = true for incomplete set, want false")
		}
	})

	t.Run("empty set", func(t *testing.T) {
		if _, ok := (SubRatings{}).Values(); ok {
			t.Error("Values() ok = true for empty set, want false")
		}
	})
}

func TestHostTenureYears(t *testing.T) {
	ref := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	since := time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		host HostProfile
		want float64
	}{
		{"five years", HostProfile{Since: &since}, 5.0},
		{"unknown since", HostProfile{}, 0},
		{"future since", HostProfile{Since: &future}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.host.TenureYears(ref)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("TenureYears() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeatureMatrixAppendAndColumn(t *testing.T) {
	m := NewFeatureMatrix([]string{"a", "b", "c"}, 2)

	if err := m.AppendRow(1, []float64{1, 2, 3}); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if err := m.AppendRow(2, []float64{4, 5, 6}); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}

	if err := m.AppendRow(3, []float64{1, 2}); err == nil {
		t.Error("AppendRow() with short row: error = nil, want error")
	}

	col, err := m.Column("b")
	if err != nil {
		t.Fatalf("Column(b) error = %v", err)
	}
	if col[0] != 2 || col[1] != 5 {
		t.Errorf("Column(b) = %v, want [2 5]", col)
	}

	if _, err := m.Column("missing"); err == nil {
		t.Error("Column(missing): error = nil, want error")
	}
}

func TestFeatureMatrixSelectAndDrop(t *testing.T) {
	m := NewFeatureMatrix([]string{"a", "b", "c"}, 1)
	if err := m.AppendRow(7, []float64{10, 20, 30}); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}

	sel, err := m.Select([]string{"c", "a"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.NumColumns() != 2 || sel.Rows[0][0] != 30 || sel.Rows[0][1] != 10 {
		t.Errorf("Select() = cols %v row %v, want [c a] [30 10]", sel.Columns, sel.Rows[0])
	}
	if sel.ListingIDs[0] != 7 {
		t.Errorf("Select() listing ID = %d, want 7", sel.ListingIDs[0])
	}

	dropped, err := m.Drop("b")
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if dropped.NumColumns() != 2 {
		t.Errorf("Drop() left %d columns, want 2", dropped.NumColumns())
	}
	if _, ok := dropped.ColumnIndex("b"); ok {
		t.Error("Drop() kept column b")
	}

	if _, err := m.Select([]string{"nope"}); err == nil {
		t.Error("Select() with unknown column: error = nil, want error")
	}
	if _, err := m.Drop("nope"); err == nil {
		t.Error("Drop() with unknown column: error = nil, want error")
	}
}

func TestFeatureMatrixRowVector(t *testing.T) {
	m := NewFeatureMatrix([]string{"x", "y"}, 1)
	if err := m.AppendRow(1, []float64{1.5, -2.5}); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	fv := m.RowVector(0)
	if fv["x"] != 1.5 || fv["y"] != -2.5 {
		t.Errorf("RowVector(0) = %v, want map[x:1.5 y:-2.5]", fv)
	}
}

func TestEvaluationReportModel(t *testing.T) {
	rep := EvaluationReport{
		Models: []ModelReport{
			{Name: "ridge", Status: ModelTrained},
			{Name: "random_forest", Status: ModelFailed, Error: "singular matrix"},
		},
	}

	if m, ok := rep.Model("ridge"); !ok || m.Status != ModelTrained {
		t.Errorf("Model(ridge) = %+v, %v; want trained, true", m, ok)
	}
	if m, ok := rep.Model("random_forest"); !ok || m.Error == "" {
		t.Errorf("Model(random_forest) = %+v, %v; want failure reason, true", m, ok)
	}
	if _, ok := rep.Model("xgboost"); ok {
		t.Error("Model(xgboost) ok = true, want false")
	}
}
