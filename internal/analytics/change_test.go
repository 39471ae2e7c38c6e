package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/model"
)

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		name     string
		previous float64
		current  float64
		wantPct  float64
		wantDir  model.Direction
		wantSev  model.Severity
		wantOK   bool
	}{
		{"significant increase", 100, 115, 15, model.DirectionIncreased, model.SeveritySignificant, true},
		{"exactly ten percent", 100, 110, 10, model.DirectionIncreased, model.SeveritySignificant, true},
		{"notable decrease", 200, 186, -7, model.DirectionDecreased, model.SeverityNotable, true},
		{"exactly five percent", 100, 95, -5, model.DirectionDecreased, model.SeverityNotable, true},
		{"minor increase", 100, 102, 2, model.DirectionIncreased, model.SeverityMinor, true},
		{"negative previous", -100, -90, 10, model.DirectionIncreased, model.SeveritySignificant, true},
		{"zero previous", 0, 50, 0, "", "", false},
		{"unchanged", 100, 100, 0, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, dir, sev, ok := ClassifyChange(tt.previous, tt.current)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.InDelta(t, tt.wantPct, pct, 1e-9)
			assert.Equal(t, tt.wantDir, dir)
			assert.Equal(t, tt.wantSev, sev)
		})
	}
}

func TestInsightForChange(t *testing.T) {
	event := model.PriceChangeEvent{
		ItemName:      "Widget Pro",
		SourceID:      "vendor-a",
		PreviousValue: 100,
		NewValue:      112,
		PercentChange: 12,
		Direction:     model.DirectionIncreased,
		Severity:      model.SeveritySignificant,
	}

	insight, emit := InsightForChange(event)
	require.True(t, emit)
	assert.Equal(t, model.InsightPriceSpike, insight.Category)
	assert.Contains(t, insight.Title, "Price spike")
	assert.Contains(t, insight.Title, "Widget Pro")
	assert.Contains(t, insight.Body, "rose")
	assert.Equal(t, model.SeveritySignificant, insight.Severity)

	event.Direction = model.DirectionDecreased
	event.PercentChange = -12
	insight, emit = InsightForChange(event)
	require.True(t, emit)
	assert.Equal(t, model.InsightPriceDrop, insight.Category)
	assert.Contains(t, insight.Body, "fell")

	event.Severity = model.SeverityMinor
	_, emit = InsightForChange(event)
	assert.False(t, emit)
}

// fakeChangeStore records the event and insight writes the detector makes.
type fakeChangeStore struct {
	previous *model.EvidenceRecord
	prevErr  error

	events   []model.PriceChangeEvent
	insights []model.Insight
}

func (f *fakeChangeStore) GetPreviousEvidenceRecord(_ context.Context, _, _ string, _ time.Time) (*model.EvidenceRecord, error) {
	return f.previous, f.prevErr
}

func (f *fakeChangeStore) CreatePriceChangeEvent(_ context.Context, event model.PriceChangeEvent) (string, error) {
	f.events = append(f.events, event)
	return "event-1", nil
}

func (f *fakeChangeStore) InsertProjectInsight(_ context.Context, insight model.Insight) (string, error) {
	f.insights = append(f.insights, insight)
	return "insight-1", nil
}

func record(itemName string, value *float64, capturedAt time.Time) model.EvidenceRecord {
	return model.EvidenceRecord{
		ID:         "rec-1",
		SourceID:   "vendor-a",
		ItemName:   itemName,
		CapturedAt: capturedAt,
		Evidence:   model.NormalizedEvidence{Metric: "widget", Value: value, Grade: model.GradeA, Confidence: 0.9},
	}
}

func TestDetector_EmitsEventAndInsight(t *testing.T) {
	prevVal, newVal := 100.0, 112.0
	prev := record("Widget Pro", &prevVal, day(1))
	st := &fakeChangeStore{previous: &prev}

	event, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", &newVal, day(5)))
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, "event-1", event.ID)
	assert.InDelta(t, 12, event.PercentChange, 1e-9)
	assert.Equal(t, model.SeveritySignificant, event.Severity)
	require.Len(t, st.events, 1)
	require.Len(t, st.insights, 1)
	assert.Equal(t, model.InsightPriceSpike, st.insights[0].Category)
}

func TestDetector_MinorChangeSkipsInsight(t *testing.T) {
	prevVal, newVal := 100.0, 101.0
	prev := record("Widget Pro", &prevVal, day(1))
	st := &fakeChangeStore{previous: &prev}

	event, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", &newVal, day(5)))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, model.SeverityMinor, event.Severity)
	assert.Empty(t, st.insights)
}

func TestDetector_NoPriorRecord(t *testing.T) {
	newVal := 100.0
	st := &fakeChangeStore{}

	event, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", &newVal, day(5)))
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, st.events)
}

func TestDetector_SkipsNonNumericRecords(t *testing.T) {
	st := &fakeChangeStore{}

	event, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", nil, day(5)))
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestDetector_UnchangedValue(t *testing.T) {
	val := 100.0
	prev := record("Widget Pro", &val, day(1))
	st := &fakeChangeStore{previous: &prev}

	event, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", &val, day(5)))
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, st.events)
}

func TestDetector_LookupErrorPropagates(t *testing.T) {
	val := 100.0
	st := &fakeChangeStore{prevErr: eris.New("store down")}

	_, err := NewDetector(st).Detect(context.Background(), record("Widget Pro", &val, day(5)))
	require.Error(t, err)
}
