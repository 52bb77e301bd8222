// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package pricing

import "errors"

// Training and evaluation errors.
var (
	// ErrInsufficientModels aborts ensemble construction when fewer than
	// two regressors trained successfully. A one-model "ensemble" would
	// silently degrade to that model while reporting ensemble semantics.
	ErrInsufficientModels = errors.New("fewer than two regressors trained successfully")

	ErrEmptyMatrix      = errors.New("feature matrix has no rows")
	ErrMatrixTooSmall   = errors.New("feature matrix too small to split")
	ErrUnknownMetric    = errors.New("unknown primary metric")
	ErrNoModels         = errors.New("ensemble has no models")
	ErrLengthMismatch   = errors.New("prediction and target lengths differ")
	ErrWeightCount      = errors.New("weight count does not match model count")
	ErrModelNotInReport = errors.New("model not present in report")
)
