package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-research/pricewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// The dedup_key index is deliberately non-unique: the orchestrator checks
// for duplicates before inserting, and concurrent connectors hitting the
// same key in the same instant can both land. Readers treat the rows as
// interchangeable.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	source_url  TEXT NOT NULL,
	item_name   TEXT NOT NULL,
	category    TEXT NOT NULL,
	geography   TEXT,
	evidence    TEXT NOT NULL,
	dedup_key   TEXT NOT NULL,
	captured_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	actor_id     TEXT,
	attempted    INTEGER NOT NULL,
	succeeded    INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	created      INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	sources      TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL,
	duration_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS connector_health (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	status          TEXT NOT NULL,
	items_extracted INTEGER NOT NULL DEFAULT 0,
	items_created   INTEGER NOT NULL DEFAULT 0,
	items_skipped   INTEGER NOT NULL DEFAULT 0,
	error_type      TEXT,
	error_message   TEXT,
	http_status     INTEGER,
	duration_ms     INTEGER NOT NULL,
	recorded_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trend_snapshots (
	id          TEXT PRIMARY KEY,
	metric      TEXT NOT NULL,
	category    TEXT NOT NULL,
	geography   TEXT,
	snapshot    TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_change_events (
	id             TEXT PRIMARY KEY,
	evidence_id    TEXT NOT NULL,
	item_name      TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	previous_value REAL NOT NULL,
	new_value      REAL NOT NULL,
	percent_change REAL NOT NULL,
	direction      TEXT NOT NULL,
	severity       TEXT NOT NULL,
	detected_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id                 TEXT PRIMARY KEY,
	category           TEXT NOT NULL,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	severity           TEXT NOT NULL,
	source_evidence_id TEXT,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_dedup_key ON evidence_records(dedup_key);
CREATE INDEX IF NOT EXISTS idx_evidence_item_source ON evidence_records(item_name, source_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_evidence_category ON evidence_records(category);
CREATE INDEX IF NOT EXISTS idx_health_source ON connector_health(source_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_health_run ON connector_health(run_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_metric ON trend_snapshots(metric, computed_at);
CREATE INDEX IF NOT EXISTS idx_events_item ON price_change_events(item_name, detected_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateEvidenceRecord(ctx context.Context, rec model.EvidenceRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}

	evidenceJSON, err := json.Marshal(rec.Evidence)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal evidence")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evidence_records (id, source_id, source_url, item_name, category, geography, evidence, dedup_key, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceID, rec.SourceURL, rec.ItemName, string(rec.Category),
		rec.Geography, string(evidenceJSON), rec.DedupKey(), rec.CapturedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert evidence record")
	}
	return rec.ID, nil
}

func (s *SQLiteStore) GetEvidenceRecordByID(ctx context.Context, id string) (*model.EvidenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at
		 FROM evidence_records WHERE id = ?`,
		id,
	)
	rec, err := scanEvidence(row)
	if err == errNoEvidence {
		return nil, eris.Errorf("evidence record not found: %s", id)
	}
	return rec, err
}

func (s *SQLiteStore) GetPreviousEvidenceRecord(ctx context.Context, itemName, sourceID string, before time.Time) (*model.EvidenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at
		 FROM evidence_records
		 WHERE item_name = ? AND source_id = ? AND captured_at < ?
		 ORDER BY captured_at DESC LIMIT 1`,
		itemName, sourceID, before,
	)
	rec, err := scanEvidence(row)
	if err == errNoEvidence {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) FindEvidenceByDedupKey(ctx context.Context, key string) (*model.EvidenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at
		 FROM evidence_records WHERE dedup_key = ? LIMIT 1`,
		key,
	)
	rec, err := scanEvidence(row)
	if err == errNoEvidence {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListEvidence(ctx context.Context, filter EvidenceFilter) ([]model.EvidenceRecord, error) {
	query := `SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at
	          FROM evidence_records WHERE 1=1`
	var args []any

	if filter.Metric != "" {
		query += ` AND json_extract(evidence, '$.metric') = ?`
		args = append(args, filter.Metric)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Geography != "" {
		query += ` AND geography = ?`
		args = append(args, filter.Geography)
	}
	if filter.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if !filter.Since.IsZero() {
		query += ` AND captured_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY captured_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evidence")
	}
	defer rows.Close()

	var records []model.EvidenceRecord
	for rows.Next() {
		rec, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list evidence iterate")
}

func (s *SQLiteStore) InsertIngestionRun(ctx context.Context, run model.IngestionRun) error {
	sourcesJSON, err := json.Marshal(run.Sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, trigger_kind, actor_id, attempted, succeeded, failed, created, skipped, sources, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Trigger), run.ActorID, run.Attempted, run.Succeeded, run.Failed,
		run.Created, run.Skipped, string(sourcesJSON), run.StartedAt, run.CompletedAt, run.DurationMS,
	)
	return eris.Wrap(err, "sqlite: insert ingestion run")
}

func (s *SQLiteStore) InsertConnectorHealth(ctx context.Context, health model.ConnectorHealth) error {
	if health.ID == "" {
		health.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connector_health (id, run_id, source_id, status, items_extracted, items_created, items_skipped, error_type, error_message, http_status, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		health.ID, health.RunID, health.SourceID, string(health.Status),
		health.ItemsExtracted, health.ItemsCreated, health.ItemsSkipped,
		string(health.ErrorType), health.ErrorMessage, health.HTTPStatus,
		health.DurationMS, health.RecordedAt,
	)
	return eris.Wrap(err, "sqlite: insert connector health")
}

func (s *SQLiteStore) ListConnectorHealth(ctx context.Context, sourceID string, limit int) ([]model.ConnectorHealth, error) {
	query := `SELECT id, run_id, source_id, status, items_extracted, items_created, items_skipped, error_type, error_message, http_status, duration_ms, recorded_at
	          FROM connector_health WHERE 1=1`
	var args []any

	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY recorded_at DESC`

	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list connector health")
	}
	defer rows.Close()

	var out []model.ConnectorHealth
	for rows.Next() {
		var h model.ConnectorHealth
		var errType, errMsg sql.NullString
		var httpStatus sql.NullInt64
		if err := rows.Scan(&h.ID, &h.RunID, &h.SourceID, &h.Status,
			&h.ItemsExtracted, &h.ItemsCreated, &h.ItemsSkipped,
			&errType, &errMsg, &httpStatus, &h.DurationMS, &h.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan connector health")
		}
		h.ErrorType = model.ErrorType(errType.String)
		h.ErrorMessage = errMsg.String
		h.HTTPStatus = int(httpStatus.Int64)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list connector health iterate")
}

func (s *SQLiteStore) InsertTrendSnapshot(ctx context.Context, snap model.TrendSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trend_snapshots (id, metric, category, geography, snapshot, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Metric, string(snap.Category), snap.Geography, string(snapJSON), snap.ComputedAt,
	)
	return eris.Wrap(err, "sqlite: insert trend snapshot")
}

func (s *SQLiteStore) CreatePriceChangeEvent(ctx context.Context, event model.PriceChangeEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_change_events (id, evidence_id, item_name, source_id, previous_value, new_value, percent_change, direction, severity, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.EvidenceID, event.ItemName, event.SourceID,
		event.PreviousValue, event.NewValue, event.PercentChange,
		string(event.Direction), string(event.Severity), event.DetectedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert price change event")
	}
	return event.ID, nil
}

func (s *SQLiteStore) InsertProjectInsight(ctx context.Context, insight model.Insight) (string, error) {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (id, category, title, body, severity, source_evidence_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		insight.ID, string(insight.Category), insight.Title, insight.Body,
		string(insight.Severity), insight.SourceEvidenceID, insight.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert insight")
	}
	return insight.ID, nil
}

// helpers

var errNoEvidence = eris.New("no evidence row")

type scannable interface {
	Scan(dest ...any) error
}

func scanEvidence(row scannable) (*model.EvidenceRecord, error) {
	var rec model.EvidenceRecord
	var geography sql.NullString
	var evidenceJSON string

	err := row.Scan(&rec.ID, &rec.SourceID, &rec.SourceURL, &rec.ItemName,
		&rec.Category, &geography, &evidenceJSON, &rec.CapturedAt)
	if err == sql.ErrNoRows {
		return nil, errNoEvidence
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan evidence record")
	}

	rec.Geography = geography.String
	if err := json.Unmarshal([]byte(evidenceJSON), &rec.Evidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal evidence")
	}
	return &rec, nil
}
