// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package features

import (
	"math"
	"time"

	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/models"
)

// temporalColumns is the temporal engine's column contract.
var temporalColumns = []string{
	"month",
	"month_sin",
	"month_cos",
	"dow_sin",
	"dow_cos",
	"is_weekend",
	"season_summer",
	"season_autumn",
	"season_winter",
	"season_spring",
	"is_high_season",
	"is_holiday",
	"occupancy_rate_30",
	"occupancy_rate_60",
	"occupancy_rate_90",
	"recent_demand",
	"popularity_score",
}

// Season labels, mapped for the Southern Hemisphere.
type Season string

const (
	SeasonSummer Season = "summer" // Dec-Feb
	SeasonAutumn Season = "autumn" // Mar-May
	SeasonWinter Season = "winter" // Jun-Aug
	SeasonSpring Season = "spring" // Sep-Nov
)

// SeasonFor maps a month to its Southern Hemisphere season.
func SeasonFor(month time.Month) Season {
	switch month {
	case time.December, time.January, time.February:
		return SeasonSummer
	case time.March, time.April, time.May:
		return SeasonAutumn
	case time.June, time.July, time.August:
		return SeasonWinter
	default:
		return SeasonSpring
	}
}

// TemporalEngine derives calendar and demand features relative to a fixed
// reference date: a snapshot date for training, "now" for scoring. All
// outputs are pure functions of (reference date, listing), so the engine is
// deterministic and trivially testable.
type TemporalEngine struct {
	ref           time.Time
	holidays      []config.HolidayDate
	toleranceDays int

	// Calendar features are identical for every listing in a run; compute
	// them once at construction.
	calendar models.FeatureVector
}

// NewTemporalEngine builds the engine around a reference date.
func NewTemporalEngine(ref time.Time, holidays []config.HolidayDate, toleranceDays int) *TemporalEngine {
	e := &TemporalEngine{
		ref:           ref,
		holidays:      holidays,
		toleranceDays: toleranceDays,
	}
	e.calendar = e.calendarFeatures()
	return e
}

// Name implements Engine.
func (e *TemporalEngine) Name() string { return "temporal" }

// Columns implements Engine.
func (e *TemporalEngine) Columns() []string { return temporalColumns }

// Sentinel implements Engine.
func (e *TemporalEngine) Sentinel(string) float64 { return 0 }

// Compute implements Engine.
func (e *TemporalEngine) Compute(l *models.Listing, out models.FeatureVector) {
	for k, v := range e.calendar {
		out[k] = v
	}

	out["occupancy_rate_30"] = occupancyRate(l.Availability30, 30)
	out["occupancy_rate_60"] = occupancyRate(l.Availability60, 60)
	out["occupancy_rate_90"] = occupancyRate(l.Availability90, 90)

	rpm := 0.0
	if l.ReviewsPerMonth != nil {
		rpm = *l.ReviewsPerMonth
	}
	out["recent_demand"] = rpm
	out["popularity_score"] = 0.5*float64(l.ReviewCount) + 0.5*100*rpm
}

// calendarFeatures derives the listing-independent features of the
// reference date.
func (e *TemporalEngine) calendarFeatures() models.FeatureVector {
	month := int(e.ref.Month())
	// Monday-indexed day of week: Monday=0 .. Sunday=6.
	dow := (int(e.ref.Weekday()) + 6) % 7

	season := SeasonFor(e.ref.Month())
	wd := e.ref.Weekday()

	return models.FeatureVector{
		"month":     float64(month),
		"month_sin": math.Sin(2 * math.Pi * float64(month) / 12),
		"month_cos": math.Cos(2 * math.Pi * float64(month) / 12),
		"dow_sin":   math.Sin(2 * math.Pi * float64(dow) / 7),
		"dow_cos":   math.Cos(2 * math.Pi * float64(dow) / 7),
		// Weekend covers Friday through Sunday: short-term rental demand
		// peaks on Friday check-ins.
		"is_weekend":     boolFeature(wd == time.Friday || wd == time.Saturday || wd == time.Sunday),
		"season_summer":  boolFeature(season == SeasonSummer),
		"season_autumn":  boolFeature(season == SeasonAutumn),
		"season_winter":  boolFeature(season == SeasonWinter),
		"season_spring":  boolFeature(season == SeasonSpring),
		"is_high_season": boolFeature(season == SeasonSummer),
		"is_holiday":     boolFeature(e.isHoliday()),
	}
}

// isHoliday reports whether the reference date falls within the tolerance
// window of any configured holiday. Windows are evaluated against holiday
// instances in the adjacent years too, so a Dec 31 reference catches a
// Jan 1 holiday.
func (e *TemporalEngine) isHoliday() bool {
	refDay := time.Date(e.ref.Year(), e.ref.Month(), e.ref.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range e.holidays {
		for _, year := range []int{e.ref.Year() - 1, e.ref.Year(), e.ref.Year() + 1} {
			holiday := time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
			diff := refDay.Sub(holiday)
			if diff < 0 {
				diff = -diff
			}
			if diff <= time.Duration(e.toleranceDays)*24*time.Hour {
				return true
			}
		}
	}
	return false
}

// occupancyRate converts an availability count over a window into an
// implied demand rate in [0,1]: fewer available nights means higher
// occupancy.
func occupancyRate(available, window int) float64 {
	if window <= 0 {
		return 0
	}
	return clamp(1-float64(available)/float64(window), 0, 1)
}
