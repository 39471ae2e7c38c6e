package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/analytics"
	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/model"
	"github.com/meridian-research/pricewatch/internal/store"
)

// fakeConnector serves a canned payload and item list.
type fakeConnector struct {
	cfg        *connector.Config
	payload    model.RawPayload
	items      []model.ExtractedEvidence
	extractErr error
	badNorm    bool
}

func (f *fakeConnector) Config() *connector.Config { return f.cfg }

func (f *fakeConnector) Fetch(_ context.Context) model.RawPayload { return f.payload }

func (f *fakeConnector) Extract(_ context.Context, _ model.RawPayload) ([]model.ExtractedEvidence, error) {
	return f.items, f.extractErr
}

func (f *fakeConnector) Normalize(item model.ExtractedEvidence) model.NormalizedEvidence {
	if f.badNorm {
		return model.NormalizedEvidence{}
	}
	value, unit := connector.ParsePrice(item.RawText)
	return model.NormalizedEvidence{
		Metric:     connector.MetricName(item.Title),
		Value:      value,
		Unit:       unit,
		Confidence: 0.6,
		Grade:      model.GradeB,
		Summary:    item.RawText,
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func fetchedAt() time.Time {
	return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
}

func goodConnector(sourceID string) *fakeConnector {
	url := "https://" + sourceID + ".example.com/pricing"
	return &fakeConnector{
		cfg: &connector.Config{
			SourceID:  sourceID,
			SourceURL: url,
			Kind:      connector.KindCatalog,
			Category:  model.CategoryCatalogPrice,
			Geography: "US",
		},
		payload: model.RawPayload{URL: url, StatusCode: 200, FetchedAt: fetchedAt()},
		items: []model.ExtractedEvidence{
			{Title: "Widget Pro", RawText: "Widget Pro $99.95", Category: model.CategoryCatalogPrice, SourceURL: url},
			{Title: "Widget Lite", RawText: "Widget Lite $29.00", Category: model.CategoryCatalogPrice, SourceURL: url},
		},
	}
}

func failedConnector(sourceID string) *fakeConnector {
	return &fakeConnector{
		cfg: &connector.Config{
			SourceID:  sourceID,
			SourceURL: "https://" + sourceID + ".example.com",
			Kind:      connector.KindCatalog,
			Category:  model.CategoryCatalogPrice,
		},
		payload: model.RawPayload{Err: "blocked (cloudflare)"},
	}
}

func TestRun_PersistsEvidenceAndHealth(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, analytics.NewDetector(st), nil, 2)
	ctx := context.Background()

	run, err := orch.Run(ctx, []connector.Connector{goodConnector("vendor-a")}, model.TriggerManual, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, run.Attempted)
	assert.Equal(t, 1, run.Succeeded)
	assert.Zero(t, run.Failed)
	assert.Equal(t, 2, run.Created)
	assert.Zero(t, run.Skipped)
	require.Len(t, run.Sources, 1)
	assert.Equal(t, model.HealthSuccess, run.Sources[0].Status)

	records, err := st.ListEvidence(ctx, store.EvidenceFilter{Metric: "widget_pro"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vendor-a", records[0].SourceID)
	require.NotNil(t, records[0].Evidence.Value)
	assert.InDelta(t, 99.95, *records[0].Evidence.Value, 1e-9)

	health, err := st.ListConnectorHealth(ctx, "vendor-a", 10)
	require.NoError(t, err)
	require.Len(t, health, 1)
	assert.Equal(t, model.HealthSuccess, health[0].Status)
	assert.Equal(t, 2, health[0].ItemsCreated)
	assert.Equal(t, 200, health[0].HTTPStatus)
}

func TestRun_RerunSkipsDuplicates(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)
	ctx := context.Background()

	conn := goodConnector("vendor-a")
	_, err := orch.Run(ctx, []connector.Connector{conn}, model.TriggerManual, "tester")
	require.NoError(t, err)

	// Same payload capture date: every item hits the dedup key.
	run, err := orch.Run(ctx, []connector.Connector{conn}, model.TriggerManual, "tester")
	require.NoError(t, err)

	assert.Zero(t, run.Created)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, model.HealthPartial, run.Sources[0].Status)
}

func TestRun_FailedConnectorDoesNotAbortSiblings(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)
	ctx := context.Background()

	run, err := orch.Run(ctx, []connector.Connector{
		failedConnector("vendor-down"),
		goodConnector("vendor-up"),
	}, model.TriggerManual, "tester")
	require.NoError(t, err)

	assert.Equal(t, 2, run.Attempted)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, run.Created)

	byID := make(map[string]model.SourceResult)
	for _, r := range run.Sources {
		byID[r.SourceID] = r
	}
	assert.Equal(t, model.HealthFailed, byID["vendor-down"].Status)
	assert.Equal(t, model.ErrorBlocked, byID["vendor-down"].ErrorType)
	assert.Equal(t, model.HealthSuccess, byID["vendor-up"].Status)
}

func TestRun_ExtractionFailure(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)

	conn := goodConnector("vendor-a")
	conn.extractErr = assert.AnError

	run, err := orch.Run(context.Background(), []connector.Connector{conn}, model.TriggerManual, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, model.ErrorExtraction, run.Sources[0].ErrorType)
}

func TestRun_InvalidItemsSkipped(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)

	conn := goodConnector("vendor-a")
	conn.items = append(conn.items, model.ExtractedEvidence{Title: "", RawText: "orphan"})

	run, err := orch.Run(context.Background(), []connector.Connector{conn}, model.TriggerManual, "tester")
	require.NoError(t, err)

	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, model.HealthPartial, run.Sources[0].Status)
}

func TestRun_BadNormalizationFallsBack(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)
	ctx := context.Background()

	conn := goodConnector("vendor-a")
	conn.badNorm = true

	run, err := orch.Run(ctx, []connector.Connector{conn}, model.TriggerManual, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Created) // items survive as fallback records

	records, err := st.ListEvidence(ctx, store.EvidenceFilter{Metric: "widget_pro"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.GradeC, records[0].Evidence.Grade)
	assert.Nil(t, records[0].Evidence.Value)
	assert.Contains(t, records[0].Evidence.Tags, "fallback")
}

func TestRun_SummaryPersistedWhenEverythingFails(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)

	run, err := orch.Run(context.Background(), []connector.Connector{failedConnector("vendor-down")}, model.TriggerManual, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Zero(t, run.Succeeded)
	assert.NotZero(t, run.CompletedAt)
}

// trackingConnector records how many Fetch calls overlap.
type trackingConnector struct {
	*fakeConnector
	inflight *atomic.Int64
	peak     *atomic.Int64
}

func (c *trackingConnector) Fetch(ctx context.Context) model.RawPayload {
	cur := c.inflight.Add(1)
	for {
		p := c.peak.Load()
		if cur <= p || c.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	c.inflight.Add(-1)
	return c.fakeConnector.Fetch(ctx)
}

func TestRun_BoundsConcurrentFetches(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)

	var inflight, peak atomic.Int64
	var connectors []connector.Connector
	for i := 0; i < 8; i++ {
		connectors = append(connectors, &trackingConnector{
			fakeConnector: goodConnector(fmt.Sprintf("vendor-%d", i)),
			inflight:      &inflight,
			peak:          &peak,
		})
	}

	run, err := orch.Run(context.Background(), connectors, model.TriggerManual, "tester")
	require.NoError(t, err)
	assert.Equal(t, 8, run.Attempted)
	assert.Equal(t, 8, run.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestRunSingle(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, nil, nil, 2)

	run, err := orch.RunSingle(context.Background(), goodConnector("vendor-a"), model.TriggerManual, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Attempted)
	assert.Equal(t, 2, run.Created)
}
