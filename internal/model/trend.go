package model

import "time"

// Direction classifies how a series or a single value moved.
type Direction string

const (
	DirectionRising    Direction = "rising"
	DirectionFalling   Direction = "falling"
	DirectionStable    Direction = "stable"
	DirectionIncreased Direction = "increased"
	DirectionDecreased Direction = "decreased"
)

// ConfidenceTier buckets how much evidence backs a trend.
type ConfidenceTier string

const (
	TierHigh         ConfidenceTier = "high"
	TierMedium       ConfidenceTier = "medium"
	TierLow          ConfidenceTier = "low"
	TierInsufficient ConfidenceTier = "insufficient"
)

// TrendPoint is one evidence observation in a metric time series.
type TrendPoint struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	Grade    Grade     `json:"grade"`
	SourceID string    `json:"source_id"`
}

// MovingAveragePoint pairs a point's date with its windowed average.
type MovingAveragePoint struct {
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Average float64   `json:"average"`
}

// Anomaly marks a point whose residual against the moving average exceeded
// the deviation threshold.
type Anomaly struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	Expected float64   `json:"expected"`
	Residual float64   `json:"residual"`
}

// TrendSnapshot is one computed trend per (metric, category, geography).
// Each computation is a pure function of the evidence passed in.
type TrendSnapshot struct {
	ID             string               `json:"id"`
	Metric         string               `json:"metric"`
	Category       Category             `json:"category"`
	Geography      string               `json:"geography,omitempty"`
	DataPoints     int                  `json:"data_points"`
	GradeCounts    map[Grade]int        `json:"grade_counts"`
	CurrentAvg     float64              `json:"current_avg"`
	PreviousAvg    *float64             `json:"previous_avg,omitempty"`
	PercentChange  float64              `json:"percent_change"`
	Direction      Direction            `json:"direction"`
	Anomalies      []Anomaly            `json:"anomalies,omitempty"`
	ConfidenceTier ConfidenceTier       `json:"confidence_tier"`
	Series         []MovingAveragePoint `json:"series"`
	ComputedAt     time.Time            `json:"computed_at"`
}

// Severity buckets how large a detected price change is.
type Severity string

const (
	SeverityMinor       Severity = "minor"
	SeverityNotable     Severity = "notable"
	SeveritySignificant Severity = "significant"
)

// PriceChangeEvent is emitted when a newly persisted value diverges from
// the immediately preceding value for the same item and source.
type PriceChangeEvent struct {
	ID            string    `json:"id"`
	EvidenceID    string    `json:"evidence_id"`
	ItemName      string    `json:"item_name"`
	SourceID      string    `json:"source_id"`
	PreviousValue float64   `json:"previous_value"`
	NewValue      float64   `json:"new_value"`
	PercentChange float64   `json:"percent_change"`
	Direction     Direction `json:"direction"`
	Severity      Severity  `json:"severity"`
	DetectedAt    time.Time `json:"detected_at"`
}

// InsightCategory classifies a higher-level insight event.
type InsightCategory string

const (
	InsightPriceSpike InsightCategory = "price_spike"
	InsightPriceDrop  InsightCategory = "price_drop"
)

// Insight is a higher-level event emitted for notable and significant
// price changes, consumed downstream.
type Insight struct {
	ID               string          `json:"id"`
	Category         InsightCategory `json:"category"`
	Title            string          `json:"title"`
	Body             string          `json:"body"`
	Severity         Severity        `json:"severity"`
	SourceEvidenceID string          `json:"source_evidence_id"`
	CreatedAt        time.Time       `json:"created_at"`
}
