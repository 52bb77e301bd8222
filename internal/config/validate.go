// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tomtom215/pernocta/internal/validation"
)

// Configuration errors. These abort startup; a pipeline must never start
// with an invalid weight set or an unknown regressor name.
var (
	ErrInvalidWeights   = errors.New("weights do not sum to 1")
	ErrInvalidHoliday   = errors.New("invalid holiday date, expected MM-DD")
	ErrUnknownRegressor = errors.New("unknown regressor name")
	ErrMissingSecret    = errors.New("auth mode requires credentials")
)

// weightSumTolerance allows for floating-point drift in configured weights.
const weightSumTolerance = 1e-6

// knownRegressors is the registry of regressor names the orchestrator can
// construct. Validation checks the configured list against it so a typo
// fails at load time rather than at training time.
var knownRegressors = map[string]struct{}{
	"ridge":             {},
	"random_forest":     {},
	"gradient_boosting": {},
}

// Validate checks the full configuration. Structural checks, including the
// mmdd holiday format and coordinate bounds, run through the shared
// validator; cross-field checks (weight sums, auth credential presence) are
// explicit because validator tags cannot express them.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.Pipeline.validateWeights(); err != nil {
		return err
	}

	if _, err := c.Pipeline.ParseHolidays(); err != nil {
		return err
	}

	for _, name := range c.Pipeline.Training.Regressors {
		if _, ok := knownRegressors[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRegressor, name)
		}
	}

	switch c.Auth.Mode {
	case AuthModeBearer:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("%w: bearer mode needs auth.jwt_secret", ErrMissingSecret)
		}
	case AuthModeBasic:
		if c.Auth.BasicUser == "" || c.Auth.BasicPasswordHash == "" {
			return fmt.Errorf("%w: basic mode needs auth.basic_user and auth.basic_password_hash", ErrMissingSecret)
		}
	case AuthModeNone:
		// open mode, nothing to check
	}

	if c.Export.Enabled && c.Export.DSN == "" {
		return errors.New("export.enabled requires export.dsn")
	}

	return nil
}

// validateWeights checks that each weighted score's weights sum to 1.
func (p *PipelineConfig) validateWeights() error {
	trustSum := p.Trust.RatingWeight + p.Trust.VolumeWeight + p.Trust.SufficiencyWeight
	if math.Abs(trustSum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: trust weights sum to %g", ErrInvalidWeights, trustSum)
	}

	hostSum := p.Host.SuperhostWeight + p.Host.ResponseWeight +
		p.Host.VerifiedWeight + p.Host.TenureWeight
	if math.Abs(hostSum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: host weights sum to %g", ErrInvalidWeights, hostSum)
	}

	var amenitySum float64
	for category, w := range p.Amenity.Weights {
		if _, ok := p.Amenity.Categories[category]; !ok {
			return fmt.Errorf("amenity weight for unknown category %q", category)
		}
		amenitySum += w
	}
	for category := range p.Amenity.Categories {
		if _, ok := p.Amenity.Weights[category]; !ok {
			return fmt.Errorf("amenity category %q has no weight", category)
		}
		if len(p.Amenity.Categories[category]) == 0 {
			return fmt.Errorf("amenity category %q has no synonyms", category)
		}
	}
	if math.Abs(amenitySum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: amenity weights sum to %g", ErrInvalidWeights, amenitySum)
	}

	return nil
}

// HolidayDate is a recurring (month, day) holiday.
type HolidayDate struct {
	Month int
	Day   int
}

// ParseHolidays parses the configured "MM-DD" holiday strings.
func (p *PipelineConfig) ParseHolidays() ([]HolidayDate, error) {
	out := make([]HolidayDate, 0, len(p.Holidays))
	for _, raw := range p.Holidays {
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHoliday, raw)
		}
		month, err := strconv.Atoi(parts[0])
		if err != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHoliday, raw)
		}
		day, err := strconv.Atoi(parts[1])
		if err != nil || day < 1 || day > 31 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHoliday, raw)
		}
		out = append(out, HolidayDate{Month: month, Day: day})
	}
	return out, nil
}
