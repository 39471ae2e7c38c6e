package model

import "time"

// TriggerKind identifies what started an ingestion run.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerScheduled TriggerKind = "scheduled"
	TriggerBackfill  TriggerKind = "backfill"
)

// ErrorType classifies a connector failure for the run report.
type ErrorType string

const (
	ErrorNone          ErrorType = ""
	ErrorNetwork       ErrorType = "network"
	ErrorTimeout       ErrorType = "timeout"
	ErrorHTTP          ErrorType = "http_error"
	ErrorBlocked       ErrorType = "blocked"
	ErrorExtraction    ErrorType = "extraction"
	ErrorNormalization ErrorType = "normalization"
	ErrorPersistence   ErrorType = "persistence"
	ErrorAnalytics     ErrorType = "analytics"
)

// HealthStatus is the per-connector outcome of one run.
type HealthStatus string

const (
	HealthSuccess HealthStatus = "success"
	HealthPartial HealthStatus = "partial"
	HealthFailed  HealthStatus = "failed"
)

// SourceResult is the per-source breakdown inside an IngestionRun.
type SourceResult struct {
	SourceID   string       `json:"source_id"`
	Status     HealthStatus `json:"status"`
	Extracted  int          `json:"extracted"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	ErrorType  ErrorType    `json:"error_type,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// IngestionRun summarizes one orchestrator invocation. Finalized at run end
// and immutable afterward.
type IngestionRun struct {
	ID          string         `json:"id"`
	Trigger     TriggerKind    `json:"trigger"`
	ActorID     string         `json:"actor_id,omitempty"`
	Attempted   int            `json:"attempted"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Created     int            `json:"created"`
	Skipped     int            `json:"skipped"`
	Sources     []SourceResult `json:"sources"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMS  int64          `json:"duration_ms"`
}

// ConnectorHealth is one append-only health row per connector per run.
type ConnectorHealth struct {
	ID             string       `json:"id"`
	RunID          string       `json:"run_id"`
	SourceID       string       `json:"source_id"`
	Status         HealthStatus `json:"status"`
	ItemsExtracted int          `json:"items_extracted"`
	ItemsCreated   int          `json:"items_created"`
	ItemsSkipped   int          `json:"items_skipped"`
	ErrorType      ErrorType    `json:"error_type,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	HTTPStatus     int          `json:"http_status,omitempty"`
	DurationMS     int64        `json:"duration_ms"`
	RecordedAt     time.Time    `json:"recorded_at"`
}
