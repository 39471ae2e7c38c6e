// Package analytics computes price trends, moving averages, anomalies, and
// change events over persisted evidence. The trend functions are pure:
// given the same points they always produce the same snapshot, regardless
// of input order.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-research/pricewatch/internal/model"
)

const (
	// DefaultWindowDays is the trailing window for averages and direction.
	DefaultWindowDays = 30
	// DefaultAnomalyThreshold is the residual deviation multiplier.
	DefaultAnomalyThreshold = 2.0

	// directionEpsilon is the fractional change below which a series is
	// considered stable.
	directionEpsilon = 0.05
)

// Options tunes the trend computation.
type Options struct {
	WindowDays       int
	AnomalyThreshold float64
}

func (o Options) withDefaults() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = DefaultAnomalyThreshold
	}
	return o
}

// sortPoints returns a date-ascending copy. Input order never affects
// results.
func sortPoints(points []model.TrendPoint) []model.TrendPoint {
	sorted := make([]model.TrendPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// MovingAverage pairs each point with the mean of all points inside the
// trailing window [date-windowDays, date], the point itself included.
func MovingAverage(points []model.TrendPoint, windowDays int) []model.MovingAveragePoint {
	if len(points) == 0 {
		return nil
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	sorted := sortPoints(points)
	window := time.Duration(windowDays) * 24 * time.Hour

	out := make([]model.MovingAveragePoint, 0, len(sorted))
	for i, p := range sorted {
		cutoff := p.Date.Add(-window)
		sum := 0.0
		n := 0
		for j := i; j >= 0; j-- {
			if sorted[j].Date.Before(cutoff) {
				break
			}
			sum += sorted[j].Value
			n++
		}
		out = append(out, model.MovingAveragePoint{
			Date:    p.Date,
			Value:   p.Value,
			Average: sum / float64(n),
		})
	}
	return out
}

// DetectDirection compares the average over the trailing window ending at
// asOf with the average over the window immediately before it. The percent
// change is a fraction of the previous average; moves inside ±5% count as
// stable. An empty previous window yields stable with a nil previous
// average, never a division by zero.
func DetectDirection(points []model.TrendPoint, asOf time.Time, windowDays int) (current float64, previous *float64, pctChange float64, direction model.Direction) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	window := time.Duration(windowDays) * 24 * time.Hour
	currentStart := asOf.Add(-window)
	previousStart := currentStart.Add(-window)

	var curSum, prevSum float64
	var curN, prevN int
	for _, p := range points {
		if p.Date.After(asOf) {
			continue
		}
		switch {
		case !p.Date.Before(currentStart):
			curSum += p.Value
			curN++
		case !p.Date.Before(previousStart):
			prevSum += p.Value
			prevN++
		}
	}

	if curN > 0 {
		current = curSum / float64(curN)
	}
	if prevN == 0 {
		return current, nil, 0, model.DirectionStable
	}

	prevAvg := prevSum / float64(prevN)
	previous = &prevAvg
	if prevAvg != 0 {
		pctChange = (current - prevAvg) / math.Abs(prevAvg)
	}

	switch {
	case pctChange > directionEpsilon:
		direction = model.DirectionRising
	case pctChange < -directionEpsilon:
		direction = model.DirectionFalling
	default:
		direction = model.DirectionStable
	}
	return current, previous, pctChange, direction
}

// FlagAnomalies marks points whose residual against their own moving
// average exceeds threshold standard deviations of all residuals. Fewer
// than three points, or a flat series, yields no anomalies.
func FlagAnomalies(points []model.TrendPoint, windowDays int, threshold float64) []model.Anomaly {
	if len(points) < 3 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	series := MovingAverage(points, windowDays)

	residuals := make([]float64, len(series))
	mean := 0.0
	for i, p := range series {
		residuals[i] = p.Value - p.Average
		mean += residuals[i]
	}
	mean /= float64(len(residuals))

	variance := 0.0
	for _, r := range residuals {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(residuals)))
	if stdDev == 0 {
		return nil
	}

	var anomalies []model.Anomaly
	for i, p := range series {
		if math.Abs(residuals[i]) > threshold*stdDev {
			anomalies = append(anomalies, model.Anomaly{
				Date:     p.Date,
				Value:    p.Value,
				Expected: p.Average,
				Residual: residuals[i],
			})
		}
	}
	return anomalies
}

// ConfidenceTier buckets how much evidence backs a trend, stepping on both
// total point count and the number of top-grade observations.
func ConfidenceTier(points []model.TrendPoint) model.ConfidenceTier {
	gradeA := 0
	for _, p := range points {
		if p.Grade == model.GradeA {
			gradeA++
		}
	}
	switch {
	case len(points) < 3:
		return model.TierInsufficient
	case len(points) >= 10 && gradeA >= 3:
		return model.TierHigh
	case len(points) >= 5 && gradeA >= 1:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// PointsFromRecords projects evidence records onto trend points, skipping
// records without a numeric value. Point dates are capture dates.
func PointsFromRecords(records []model.EvidenceRecord) []model.TrendPoint {
	var points []model.TrendPoint
	for _, rec := range records {
		if rec.Evidence.Value == nil {
			continue
		}
		points = append(points, model.TrendPoint{
			Date:     rec.CapturedAt,
			Value:    *rec.Evidence.Value,
			Grade:    rec.Evidence.Grade,
			SourceID: rec.SourceID,
		})
	}
	return points
}

// ComputeSnapshot runs the full trend computation for one metric slice.
// Direction windows anchor at the newest observation, so a source that went
// quiet reads as stable rather than falling off a cliff.
func ComputeSnapshot(metric string, category model.Category, geography string, points []model.TrendPoint, asOf time.Time, opts Options) model.TrendSnapshot {
	opts = opts.withDefaults()
	sorted := sortPoints(points)

	gradeCounts := make(map[model.Grade]int)
	for _, p := range sorted {
		gradeCounts[p.Grade]++
	}

	anchor := asOf
	if n := len(sorted); n > 0 && sorted[n-1].Date.Before(anchor) {
		anchor = sorted[n-1].Date
	}
	current, previous, pctChange, direction := DetectDirection(sorted, anchor, opts.WindowDays)

	return model.TrendSnapshot{
		ID:             uuid.New().String(),
		Metric:         metric,
		Category:       category,
		Geography:      geography,
		DataPoints:     len(sorted),
		GradeCounts:    gradeCounts,
		CurrentAvg:     current,
		PreviousAvg:    previous,
		PercentChange:  pctChange,
		Direction:      direction,
		Anomalies:      FlagAnomalies(sorted, opts.WindowDays, opts.AnomalyThreshold),
		ConfidenceTier: ConfidenceTier(sorted),
		Series:         MovingAverage(sorted, opts.WindowDays),
		ComputedAt:     asOf,
	}
}
