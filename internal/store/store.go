package store

import (
	"context"
	"time"

	"github.com/meridian-research/pricewatch/internal/model"
)

// EvidenceFilter specifies criteria for listing evidence records.
type EvidenceFilter struct {
	Metric    string         `json:"metric,omitempty"`
	Category  model.Category `json:"category,omitempty"`
	Geography string         `json:"geography,omitempty"`
	SourceID  string         `json:"source_id,omitempty"`
	Since     time.Time      `json:"since,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// Store defines the persistence contract for the ingestion pipeline. The
// core never embeds SQL; it calls these methods and treats the returned
// identifiers as opaque.
type Store interface {
	// Evidence
	CreateEvidenceRecord(ctx context.Context, rec model.EvidenceRecord) (string, error)
	GetEvidenceRecordByID(ctx context.Context, id string) (*model.EvidenceRecord, error)
	GetPreviousEvidenceRecord(ctx context.Context, itemName, sourceID string, before time.Time) (*model.EvidenceRecord, error)
	FindEvidenceByDedupKey(ctx context.Context, key string) (*model.EvidenceRecord, error)
	ListEvidence(ctx context.Context, filter EvidenceFilter) ([]model.EvidenceRecord, error)

	// Runs and health
	InsertIngestionRun(ctx context.Context, run model.IngestionRun) error
	InsertConnectorHealth(ctx context.Context, health model.ConnectorHealth) error
	ListConnectorHealth(ctx context.Context, sourceID string, limit int) ([]model.ConnectorHealth, error)

	// Analytics
	InsertTrendSnapshot(ctx context.Context, snap model.TrendSnapshot) error
	CreatePriceChangeEvent(ctx context.Context, event model.PriceChangeEvent) (string, error)
	InsertProjectInsight(ctx context.Context, insight model.Insight) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
