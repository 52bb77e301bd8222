// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

/*
Package models defines data structures shared across the Pernocta pipeline.

This package contains the domain models flowing between ingest, feature
engineering, training, and the API. It serves as the single source of truth
for data structure definitions.

Key Components:

  - Listing: a short-term rental listing as handed to the pipeline (immutable;
    engines derive columns from it, never mutate it)
  - POI: a geocoded point of interest used for distance/density features
  - FeatureMatrix: the assembled numeric matrix with a stable column contract
  - EvaluationReport: per-model metrics, status, and ranking
  - APIResponse: standardized API response wrapper

Model Categories:

1. Dataset Models:
  - Listing, SubRatings, HostProfile: listing attributes and review signals
  - POI: category-tagged coordinates

2. Pipeline Artifacts:
  - FeatureMatrix: column-ordered rows keyed by listing ID
  - ModelMetrics, ModelReport, EvaluationReport: evaluation output

3. API Models:
  - APIResponse, APIError, Metadata: response envelope

Thread Safety:

All models are data structures without internal locking. They are safe for
concurrent reads once constructed; the pipeline treats them as immutable.

JSON Marshaling:

Struct tags use snake_case field names. Optional fields are pointers with
omitempty so absent source signals stay distinguishable from zero values.

See Also:

  - internal/dataset: CSV ingest producing Listing and POI values
  - internal/features: engines consuming listings and emitting matrix columns
  - internal/pricing: training and evaluation over FeatureMatrix
*/
package models
