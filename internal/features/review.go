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

// ConsistencyUnknown is the sentinel for rating_consistency and
// avg_sub_rating when a listing is missing sub-ratings. The consistency
// feature is a negated standard deviation, which is never positive, and
// sub-ratings are never negative, so the sentinels cannot collide with real
// values. An imputed zero would instead read as "perfectly consistent",
// biasing the feature.
const (
	ConsistencyUnknown  = 1.0
	AvgSubRatingUnknown = -1.0
)

// reviewColumns is the review engine's column contract.
var reviewColumns = []string{
	"trust_score",
	"host_quality_score",
	"rating_consistency",
	"avg_sub_rating",
	"reviews_log",
	"has_min_reviews",
	"is_professional_host",
	"host_tenure_years",
	"response_rate",
	"is_superhost",
	"is_verified",
}

// professionalHostThreshold marks hosts managing more listings than a
// personal rental portfolio.
const professionalHostThreshold = 3

// ReviewEngine derives trust and host-quality features from rating,
// review-volume, and host attributes.
type ReviewEngine struct {
	trust config.TrustConfig
	host  config.HostConfig
	ref   time.Time // reference date for host tenure
}

// NewReviewEngine builds the engine. Weight sets are validated at config
// load; the engine assumes they sum to 1.
func NewReviewEngine(trust config.TrustConfig, host config.HostConfig, ref time.Time) *ReviewEngine {
	return &ReviewEngine{trust: trust, host: host, ref: ref}
}

// Name implements Engine.
func (e *ReviewEngine) Name() string { return "review_trust" }

// Columns implements Engine.
func (e *ReviewEngine) Columns() []string { return reviewColumns }

// Sentinel implements Engine.
func (e *ReviewEngine) Sentinel(column string) float64 {
	switch column {
	case "rating_consistency":
		return ConsistencyUnknown
	case "avg_sub_rating":
		return AvgSubRatingUnknown
	default:
		return 0
	}
}

// Compute implements Engine.
func (e *ReviewEngine) Compute(l *models.Listing, out models.FeatureVector) {
	out["trust_score"] = e.TrustScore(l)
	out["host_quality_score"] = e.HostQualityScore(l)

	if vals, ok := l.SubRatings.Values(); ok {
		out["avg_sub_rating"] = mean(vals)
		out["rating_consistency"] = -populationStddev(vals)
	} else {
		out["avg_sub_rating"] = AvgSubRatingUnknown
		out["rating_consistency"] = ConsistencyUnknown
	}

	out["reviews_log"] = math.Log1p(float64(l.ReviewCount))
	out["has_min_reviews"] = boolFeature(l.ReviewCount >= e.trust.MinReviews)
	out["is_professional_host"] = boolFeature(l.Host.ListingsCount > professionalHostThreshold)
	out["host_tenure_years"] = math.Min(l.Host.TenureYears(e.ref), e.host.TenureCapYears)

	responseRate := 0.0
	if l.Host.ResponseRate != nil {
		responseRate = clamp(*l.Host.ResponseRate, 0, 1)
	}
	out["response_rate"] = responseRate
	out["is_superhost"] = boolFeature(l.Host.Superhost)
	out["is_verified"] = boolFeature(l.Host.IdentityVerified)
}

// TrustScore combines three normalized components: rating level, review
// volume with a saturating transform, and a review-sufficiency indicator.
// Bounded in [0,1]; out-of-range source ratings are clamped, never
// propagated.
func (e *ReviewEngine) TrustScore(l *models.Listing) float64 {
	rating := 0.0
	if l.Rating != nil {
		rating = clamp(*l.Rating/e.trust.RatingScale, 0, 1)
	}

	volume := math.Min(float64(l.ReviewCount), float64(e.trust.MinReviews)) / float64(e.trust.MinReviews)
	sufficiency := boolFeature(l.ReviewCount >= e.trust.MinReviews)

	return e.trust.RatingWeight*rating +
		e.trust.VolumeWeight*volume +
		e.trust.SufficiencyWeight*sufficiency
}

// HostQualityScore combines superhost status, responsiveness, identity
// verification, and capped tenure into a [0,1] reliability measure.
func (e *ReviewEngine) HostQualityScore(l *models.Listing) float64 {
	responseRate := 0.0
	if l.Host.ResponseRate != nil {
		responseRate = clamp(*l.Host.ResponseRate, 0, 1)
	}

	tenure := math.Min(l.Host.TenureYears(e.ref), e.host.TenureCapYears) / e.host.TenureCapYears

	return e.host.SuperhostWeight*boolFeature(l.Host.Superhost) +
		e.host.ResponseWeight*responseRate +
		e.host.VerifiedWeight*boolFeature(l.Host.IdentityVerified) +
		e.host.TenureWeight*tenure
}

// populationStddev returns the population standard deviation. Sub-rating
// consistency uses the population form: the six dimensions are the whole
// population, not a sample.
func populationStddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}
