package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/model"
)

// changeThresholds maps minimum absolute percent change to severity,
// checked in descending order. Percent here is on the 0-100 scale.
var changeThresholds = []struct {
	minPct   float64
	severity model.Severity
}{
	{10, model.SeveritySignificant},
	{5, model.SeverityNotable},
	{0, model.SeverityMinor},
}

// ClassifyChange computes percent change between consecutive observations
// and buckets it. ok is false when no event should be emitted: a zero
// previous value makes the percentage undefined, and an unchanged value is
// not a change.
func ClassifyChange(previous, current float64) (pct float64, direction model.Direction, severity model.Severity, ok bool) {
	if previous == 0 {
		return 0, "", "", false
	}
	pct = (current - previous) / math.Abs(previous) * 100
	if pct == 0 {
		return 0, "", "", false
	}

	if pct > 0 {
		direction = model.DirectionIncreased
	} else {
		direction = model.DirectionDecreased
	}

	abs := math.Abs(pct)
	for _, t := range changeThresholds {
		if abs >= t.minPct && abs > 0 {
			severity = t.severity
			break
		}
	}
	return pct, direction, severity, true
}

// NewChangeEvent builds the event for a detected change.
func NewChangeEvent(rec model.EvidenceRecord, previous float64, pct float64, direction model.Direction, severity model.Severity, detectedAt time.Time) model.PriceChangeEvent {
	return model.PriceChangeEvent{
		EvidenceID:    rec.ID,
		ItemName:      rec.ItemName,
		SourceID:      rec.SourceID,
		PreviousValue: previous,
		NewValue:      *rec.Evidence.Value,
		PercentChange: pct,
		Direction:     direction,
		Severity:      severity,
		DetectedAt:    detectedAt,
	}
}

// InsightForChange derives the higher-level insight for a notable or
// significant change. Minor changes carry no insight and return false.
func InsightForChange(event model.PriceChangeEvent) (model.Insight, bool) {
	if event.Severity != model.SeverityNotable && event.Severity != model.SeveritySignificant {
		return model.Insight{}, false
	}

	category := model.InsightPriceSpike
	verb := "rose"
	if event.Direction == model.DirectionDecreased {
		category = model.InsightPriceDrop
		verb = "fell"
	}

	return model.Insight{
		Category: category,
		Title:    fmt.Sprintf("%s: %s moved %.1f%%", labelFor(category), event.ItemName, math.Abs(event.PercentChange)),
		Body: fmt.Sprintf("%s %s from %.2f to %.2f (%.1f%%) at source %s.",
			event.ItemName, verb, event.PreviousValue, event.NewValue, event.PercentChange, event.SourceID),
		Severity:         event.Severity,
		SourceEvidenceID: event.EvidenceID,
		CreatedAt:        event.DetectedAt,
	}, true
}

func labelFor(category model.InsightCategory) string {
	if category == model.InsightPriceDrop {
		return "Price drop"
	}
	return "Price spike"
}

// changeStore is the slice of the store the detector needs.
type changeStore interface {
	GetPreviousEvidenceRecord(ctx context.Context, itemName, sourceID string, before time.Time) (*model.EvidenceRecord, error)
	CreatePriceChangeEvent(ctx context.Context, event model.PriceChangeEvent) (string, error)
	InsertProjectInsight(ctx context.Context, insight model.Insight) (string, error)
}

// Detector compares each newly persisted record against the immediately
// preceding record for the same item and source, and records an event when
// the value moved.
type Detector struct {
	store changeStore
}

// NewDetector creates a change detector over the given store.
func NewDetector(s changeStore) *Detector {
	return &Detector{store: s}
}

// Detect runs change detection for one freshly persisted record. Returns
// the recorded event, or nil when nothing was emitted.
func (d *Detector) Detect(ctx context.Context, rec model.EvidenceRecord) (*model.PriceChangeEvent, error) {
	if rec.Evidence.Value == nil {
		return nil, nil
	}

	prev, err := d.store.GetPreviousEvidenceRecord(ctx, rec.ItemName, rec.SourceID, rec.CapturedAt)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Evidence.Value == nil {
		return nil, nil
	}

	pct, direction, severity, ok := ClassifyChange(*prev.Evidence.Value, *rec.Evidence.Value)
	if !ok {
		return nil, nil
	}

	event := NewChangeEvent(rec, *prev.Evidence.Value, pct, direction, severity, time.Now().UTC())
	id, err := d.store.CreatePriceChangeEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	event.ID = id

	if insight, emit := InsightForChange(event); emit {
		if _, err := d.store.InsertProjectInsight(ctx, insight); err != nil {
			return nil, err
		}
		zap.L().Info("insight recorded",
			zap.String("category", string(insight.Category)),
			zap.String("item", event.ItemName),
			zap.Float64("pct_change", event.PercentChange),
		)
	}

	return &event, nil
}
