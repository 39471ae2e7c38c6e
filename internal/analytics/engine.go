package analytics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/model"
	"github.com/meridian-research/pricewatch/internal/store"
)

// engineStore is the slice of the store the engine needs.
type engineStore interface {
	ListEvidence(ctx context.Context, filter store.EvidenceFilter) ([]model.EvidenceRecord, error)
	InsertTrendSnapshot(ctx context.Context, snap model.TrendSnapshot) error
}

// Engine recomputes trend snapshots from persisted evidence. One snapshot
// is produced per (metric, category, geography) slice.
type Engine struct {
	store engineStore
	opts  Options
}

// NewEngine creates a trend engine over the given store.
func NewEngine(s engineStore, opts Options) *Engine {
	return &Engine{store: s, opts: opts.withDefaults()}
}

// ComputeMetric loads all evidence for one metric, slices it by category
// and geography, and computes a snapshot per slice without persisting.
func (e *Engine) ComputeMetric(ctx context.Context, metric string, asOf time.Time) ([]model.TrendSnapshot, error) {
	records, err := e.store.ListEvidence(ctx, store.EvidenceFilter{Metric: metric})
	if err != nil {
		return nil, eris.Wrapf(err, "analytics: list evidence for %s", metric)
	}
	if len(records) == 0 {
		return nil, nil
	}

	type sliceKey struct {
		category  model.Category
		geography string
	}
	slices := make(map[sliceKey][]model.EvidenceRecord)
	for _, rec := range records {
		k := sliceKey{category: rec.Category, geography: rec.Geography}
		slices[k] = append(slices[k], rec)
	}

	var snapshots []model.TrendSnapshot
	for k, recs := range slices {
		points := PointsFromRecords(recs)
		if len(points) == 0 {
			continue
		}
		snapshots = append(snapshots, ComputeSnapshot(metric, k.category, k.geography, points, asOf, e.opts))
	}
	return snapshots, nil
}

// RecomputeMetrics computes and persists snapshots for each metric. A
// failed metric is logged and skipped; the other metrics still run. The
// returned count is the number of snapshots persisted.
func (e *Engine) RecomputeMetrics(ctx context.Context, metrics []string, asOf time.Time) (int, error) {
	persisted := 0
	var lastErr error
	for _, metric := range metrics {
		snapshots, err := e.ComputeMetric(ctx, metric, asOf)
		if err != nil {
			zap.L().Warn("trend recompute failed", zap.String("metric", metric), zap.Error(err))
			lastErr = err
			continue
		}
		for _, snap := range snapshots {
			if err := e.store.InsertTrendSnapshot(ctx, snap); err != nil {
				zap.L().Warn("trend snapshot persist failed", zap.String("metric", metric), zap.Error(err))
				lastErr = err
				continue
			}
			persisted++
		}
	}
	return persisted, lastErr
}
