// Package ingest runs connectors through the fetch-extract-normalize-persist
// pipeline. One orchestrator invocation is one ingestion run: each
// connector executes in isolation, and a connector failure degrades the run
// instead of aborting it.
package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-research/pricewatch/internal/analytics"
	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/model"
	"github.com/meridian-research/pricewatch/internal/store"
)

// DefaultMaxConcurrent bounds how many connectors run at once.
const DefaultMaxConcurrent = 3

// Orchestrator coordinates connector execution and persistence.
type Orchestrator struct {
	store         store.Store
	detector      *analytics.Detector
	engine        *analytics.Engine
	maxConcurrent int
}

// New creates an orchestrator. detector and engine may be nil, in which
// case downstream analytics is skipped.
func New(s store.Store, detector *analytics.Detector, engine *analytics.Engine, maxConcurrent int) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Orchestrator{
		store:         s,
		detector:      detector,
		engine:        engine,
		maxConcurrent: maxConcurrent,
	}
}

// Run executes all connectors with bounded concurrency, finalizes the run
// summary, and kicks off a best-effort trend recompute. The run record is
// persisted even when every connector failed; only a persistence failure
// of the summary itself returns an error.
func (o *Orchestrator) Run(ctx context.Context, connectors []connector.Connector, trigger model.TriggerKind, actorID string) (*model.IngestionRun, error) {
	run := &model.IngestionRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		ActorID:   actorID,
		Attempted: len(connectors),
		StartedAt: time.Now().UTC(),
	}

	zap.L().Info("ingestion run started",
		zap.String("run_id", run.ID),
		zap.String("trigger", string(trigger)),
		zap.Int("sources", len(connectors)),
	)

	results := make([]model.SourceResult, len(connectors))
	metricSet := make(map[string]struct{})
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)
	for i, conn := range connectors {
		i, conn := i, conn
		g.Go(func() error {
			result, metrics := o.runConnector(ctx, run.ID, conn)
			mu.Lock()
			results[i] = result
			for _, m := range metrics {
				metricSet[m] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	// Connector goroutines report through results, never through an error.
	_ = g.Wait()

	run.Sources = results
	for _, r := range results {
		run.Created += r.Created
		run.Skipped += r.Skipped
		if r.Status == model.HealthFailed {
			run.Failed++
		} else {
			run.Succeeded++
		}
	}
	run.CompletedAt = time.Now().UTC()
	run.DurationMS = run.CompletedAt.Sub(run.StartedAt).Milliseconds()

	if err := o.store.InsertIngestionRun(ctx, *run); err != nil {
		return run, eris.Wrap(err, "ingest: persist run summary")
	}

	zap.L().Info("ingestion run completed",
		zap.String("run_id", run.ID),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("created", run.Created),
		zap.Int("skipped", run.Skipped),
		zap.Int64("duration_ms", run.DurationMS),
	)

	o.recomputeTrends(ctx, metricSet)
	return run, nil
}

// RunSingle executes one connector through the same path as a full run.
func (o *Orchestrator) RunSingle(ctx context.Context, conn connector.Connector, trigger model.TriggerKind, actorID string) (*model.IngestionRun, error) {
	return o.Run(ctx, []connector.Connector{conn}, trigger, actorID)
}

// runConnector drives one connector end to end. It never panics the run:
// every failure lands in the result and the health row.
func (o *Orchestrator) runConnector(ctx context.Context, runID string, conn connector.Connector) (model.SourceResult, []string) {
	cfg := conn.Config()
	start := time.Now()
	result := model.SourceResult{SourceID: cfg.SourceID}

	log := zap.L().With(zap.String("run_id", runID), zap.String("source_id", cfg.SourceID))

	payload := conn.Fetch(ctx)
	if payload.Failed() {
		result.Status = model.HealthFailed
		result.ErrorType = ClassifyFetchError(payload.Err, payload.StatusCode)
		result.Error = payload.Err
		result.DurationMS = time.Since(start).Milliseconds()
		log.Warn("connector fetch failed",
			zap.String("error_type", string(result.ErrorType)),
			zap.String("error", payload.Err),
		)
		o.recordHealth(ctx, runID, cfg.SourceID, result, payload.StatusCode, start)
		return result, nil
	}

	items, err := conn.Extract(ctx, payload)
	if err != nil {
		result.Status = model.HealthFailed
		result.ErrorType = model.ErrorExtraction
		result.Error = err.Error()
		result.DurationMS = time.Since(start).Milliseconds()
		log.Warn("connector extraction failed", zap.Error(err))
		o.recordHealth(ctx, runID, cfg.SourceID, result, payload.StatusCode, start)
		return result, nil
	}
	result.Extracted = len(items)

	var metrics []string
	persistFailures := 0
	for _, item := range items {
		if !item.Validate() {
			result.Skipped++
			continue
		}

		norm := conn.Normalize(item)
		if !norm.Validate() {
			// Never drop an item over a bad normalization: persist it at
			// the floor instead.
			norm = connector.Fallback(cfg, item)
		}

		rec := model.EvidenceRecord{
			SourceID:   cfg.SourceID,
			SourceURL:  item.SourceURL,
			ItemName:   item.Title,
			Category:   item.Category,
			Geography:  item.Geography,
			Evidence:   norm,
			CapturedAt: payload.FetchedAt,
		}

		existing, err := o.store.FindEvidenceByDedupKey(ctx, rec.DedupKey())
		if err != nil {
			persistFailures++
			result.ErrorType = model.ErrorPersistence
			result.Error = err.Error()
			continue
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		id, err := o.store.CreateEvidenceRecord(ctx, rec)
		if err != nil {
			persistFailures++
			result.ErrorType = model.ErrorPersistence
			result.Error = err.Error()
			continue
		}
		rec.ID = id
		result.Created++
		metrics = append(metrics, norm.Metric)

		if o.detector != nil {
			if _, err := o.detector.Detect(ctx, rec); err != nil {
				// Change detection is downstream of persistence; its
				// failure never fails the item.
				log.Warn("change detection failed", zap.String("item", rec.ItemName), zap.Error(err))
			}
		}
	}

	switch {
	case persistFailures > 0 && result.Created == 0:
		result.Status = model.HealthFailed
	case persistFailures > 0 || result.Skipped > 0:
		result.Status = model.HealthPartial
	default:
		result.Status = model.HealthSuccess
	}
	if result.Status != model.HealthFailed {
		fetchedAt := payload.FetchedAt
		cfg.LastSuccessfulFetch = &fetchedAt
	}
	result.DurationMS = time.Since(start).Milliseconds()

	log.Info("connector finished",
		zap.String("status", string(result.Status)),
		zap.Int("extracted", result.Extracted),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	o.recordHealth(ctx, runID, cfg.SourceID, result, payload.StatusCode, start)
	return result, metrics
}

func (o *Orchestrator) recordHealth(ctx context.Context, runID, sourceID string, result model.SourceResult, httpStatus int, start time.Time) {
	health := model.ConnectorHealth{
		RunID:          runID,
		SourceID:       sourceID,
		Status:         result.Status,
		ItemsExtracted: result.Extracted,
		ItemsCreated:   result.Created,
		ItemsSkipped:   result.Skipped,
		ErrorType:      result.ErrorType,
		ErrorMessage:   result.Error,
		HTTPStatus:     httpStatus,
		DurationMS:     time.Since(start).Milliseconds(),
		RecordedAt:     time.Now().UTC(),
	}
	if err := o.store.InsertConnectorHealth(ctx, health); err != nil {
		zap.L().Warn("health record failed", zap.String("source_id", sourceID), zap.Error(err))
	}
}

// recomputeTrends refreshes snapshots for every metric touched by the run.
// Best effort: analytics failures are logged, never surfaced.
func (o *Orchestrator) recomputeTrends(ctx context.Context, metricSet map[string]struct{}) {
	if o.engine == nil || len(metricSet) == 0 {
		return
	}
	metrics := make([]string, 0, len(metricSet))
	for m := range metricSet {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	n, err := o.engine.RecomputeMetrics(ctx, metrics, time.Now().UTC())
	if err != nil {
		zap.L().Warn("trend recompute incomplete", zap.Int("persisted", n), zap.Error(err))
		return
	}
	zap.L().Debug("trend snapshots refreshed", zap.Int("count", n))
}
