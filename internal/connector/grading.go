package connector

import (
	"time"

	"github.com/meridian-research/pricewatch/internal/model"
)

// Grade assignment is a pure lookup on source identity, never inferred
// from content. Unknown sources get the lowest tier unconditionally.
var gradeAllowlist = map[string]model.Grade{
	// Tier A: official vendor catalogs and regulated price feeds.
	"vendor-catalog-us":  model.GradeA,
	"vendor-catalog-eu":  model.GradeA,
	"exchange-feed-spot": model.GradeA,
	"gov-price-index":    model.GradeA,

	// Tier B: industry reports and established aggregators.
	"industry-report-q":   model.GradeB,
	"aggregator-listings": model.GradeB,
	"distributor-sheet":   model.GradeB,
}

// Confidence model constants.
const (
	confidenceFloor = 0.05
	confidenceCap   = 0.95

	recentBonus  = 0.10
	stalePenalty = 0.10

	recentWindowDays = 90
	staleAfterDays   = 365
)

var gradeBase = map[model.Grade]float64{
	model.GradeA: 0.85,
	model.GradeB: 0.65,
	model.GradeC: 0.45,
}

// GradeFor returns the reliability tier for a source identity.
func GradeFor(sourceID string) model.Grade {
	if g, ok := gradeAllowlist[sourceID]; ok {
		return g
	}
	return model.GradeC
}

// Confidence computes base(grade) plus a recency adjustment, clamped to
// [confidenceFloor, confidenceCap]. Pure and total: defined for every
// grade/date combination including a missing published date.
func Confidence(grade model.Grade, published *time.Time, fetched time.Time) float64 {
	base, ok := gradeBase[grade]
	if !ok {
		base = gradeBase[model.GradeC]
	}

	adj := -stalePenalty // undated evidence is treated as stale
	if published != nil {
		age := fetched.Sub(*published)
		switch {
		case age <= recentWindowDays*24*time.Hour:
			adj = recentBonus
		case age > staleAfterDays*24*time.Hour:
			adj = -stalePenalty
		default:
			adj = 0
		}
	}

	c := base + adj
	if c < confidenceFloor {
		c = confidenceFloor
	}
	if c > confidenceCap {
		c = confidenceCap
	}
	return c
}

// ConfidenceBounds returns the clamp range, exported for boundary checks.
func ConfidenceBounds() (floor, cap float64) {
	return confidenceFloor, confidenceCap
}
