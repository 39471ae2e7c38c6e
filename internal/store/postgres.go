package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-research/pricewatch/internal/db"
	"github.com/meridian-research/pricewatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. The dedup lookup and
// evidence insert run once per extracted item.
var preparedStatements = map[string]string{
	"insert_evidence": `INSERT INTO evidence_records (id, source_id, source_url, item_name, category, geography, evidence, dedup_key, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"find_dedup":      `SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE dedup_key = $1 LIMIT 1`,
	"get_previous":    `SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE item_name = $1 AND source_id = $2 AND captured_at < $3 ORDER BY captured_at DESC LIMIT 1`,
	"insert_health":   `INSERT INTO connector_health (id, run_id, source_id, status, items_extracted, items_created, items_skipped, error_type, error_message, http_status, duration_ms, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Like SQLite, the dedup_key index is non-unique: duplicate suppression is
// a pre-insert check in the orchestrator, and the rare same-instant race
// is tolerated rather than constrained away.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS evidence_records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id   TEXT NOT NULL,
	source_url  TEXT NOT NULL,
	item_name   TEXT NOT NULL,
	category    TEXT NOT NULL,
	geography   TEXT,
	evidence    JSONB NOT NULL,
	dedup_key   TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	trigger_kind TEXT NOT NULL,
	actor_id     TEXT,
	attempted    INTEGER NOT NULL,
	succeeded    INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	created      INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	sources      JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS connector_health (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id          TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	status          TEXT NOT NULL,
	items_extracted INTEGER NOT NULL DEFAULT 0,
	items_created   INTEGER NOT NULL DEFAULT 0,
	items_skipped   INTEGER NOT NULL DEFAULT 0,
	error_type      TEXT,
	error_message   TEXT,
	http_status     INTEGER,
	duration_ms     BIGINT NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trend_snapshots (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	metric      TEXT NOT NULL,
	category    TEXT NOT NULL,
	geography   TEXT,
	snapshot    JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trend_points (
	snapshot_id TEXT NOT NULL REFERENCES trend_snapshots(id),
	date        TIMESTAMPTZ NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	average     DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS price_change_events (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	evidence_id    TEXT NOT NULL,
	item_name      TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	previous_value DOUBLE PRECISION NOT NULL,
	new_value      DOUBLE PRECISION NOT NULL,
	percent_change DOUBLE PRECISION NOT NULL,
	direction      TEXT NOT NULL,
	severity       TEXT NOT NULL,
	detected_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS insights (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	category           TEXT NOT NULL,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	severity           TEXT NOT NULL,
	source_evidence_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evidence_dedup_key ON evidence_records(dedup_key);
CREATE INDEX IF NOT EXISTS idx_evidence_item_source ON evidence_records(item_name, source_id, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_evidence_metric ON evidence_records((evidence->>'metric'));
CREATE INDEX IF NOT EXISTS idx_health_source ON connector_health(source_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_health_run ON connector_health(run_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_metric ON trend_snapshots(metric, computed_at DESC);
CREATE INDEX IF NOT EXISTS idx_trend_points_snapshot ON trend_points(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_events_item ON price_change_events(item_name, detected_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateEvidenceRecord(ctx context.Context, rec model.EvidenceRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}

	evidenceJSON, err := json.Marshal(rec.Evidence)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal evidence")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO evidence_records (id, source_id, source_url, item_name, category, geography, evidence, dedup_key, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.SourceID, rec.SourceURL, rec.ItemName, string(rec.Category),
		rec.Geography, evidenceJSON, rec.DedupKey(), rec.CapturedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert evidence record")
	}
	return rec.ID, nil
}

func (s *PostgresStore) GetEvidenceRecordByID(ctx context.Context, id string) (*model.EvidenceRecord, error) {
	rec, err := s.scanEvidenceRow(s.pool.QueryRow(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, eris.Errorf("evidence record not found: %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) GetPreviousEvidenceRecord(ctx context.Context, itemName, sourceID string, before time.Time) (*model.EvidenceRecord, error) {
	return s.scanEvidenceRow(s.pool.QueryRow(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE item_name = $1 AND source_id = $2 AND captured_at < $3 ORDER BY captured_at DESC LIMIT 1`,
		itemName, sourceID, before,
	))
}

func (s *PostgresStore) FindEvidenceByDedupKey(ctx context.Context, key string) (*model.EvidenceRecord, error) {
	return s.scanEvidenceRow(s.pool.QueryRow(ctx,
		`SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE dedup_key = $1 LIMIT 1`,
		key,
	))
}

func (s *PostgresStore) ListEvidence(ctx context.Context, filter EvidenceFilter) ([]model.EvidenceRecord, error) {
	query := `SELECT id, source_id, source_url, item_name, category, geography, evidence, captured_at FROM evidence_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Metric != "" {
		query += fmt.Sprintf(` AND evidence->>'metric' = $%d`, argIdx)
		args = append(args, filter.Metric)
		argIdx++
	}
	if filter.Category != "" {
		query += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, string(filter.Category))
		argIdx++
	}
	if filter.Geography != "" {
		query += fmt.Sprintf(` AND geography = $%d`, argIdx)
		args = append(args, filter.Geography)
		argIdx++
	}
	if filter.SourceID != "" {
		query += fmt.Sprintf(` AND source_id = $%d`, argIdx)
		args = append(args, filter.SourceID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND captured_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY captured_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evidence")
	}
	defer rows.Close()

	var records []model.EvidenceRecord
	for rows.Next() {
		var rec model.EvidenceRecord
		var geography *string
		var evidenceJSON []byte
		if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.SourceURL, &rec.ItemName,
			&rec.Category, &geography, &evidenceJSON, &rec.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence record")
		}
		if geography != nil {
			rec.Geography = *geography
		}
		if err := json.Unmarshal(evidenceJSON, &rec.Evidence); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list evidence iterate")
}

func (s *PostgresStore) InsertIngestionRun(ctx context.Context, run model.IngestionRun) error {
	sourcesJSON, err := json.Marshal(run.Sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (id, trigger_kind, actor_id, attempted, succeeded, failed, created, skipped, sources, started_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, string(run.Trigger), run.ActorID, run.Attempted, run.Succeeded, run.Failed,
		run.Created, run.Skipped, sourcesJSON, run.StartedAt, run.CompletedAt, run.DurationMS,
	)
	return eris.Wrap(err, "postgres: insert ingestion run")
}

func (s *PostgresStore) InsertConnectorHealth(ctx context.Context, health model.ConnectorHealth) error {
	if health.ID == "" {
		health.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO connector_health (id, run_id, source_id, status, items_extracted, items_created, items_skipped, error_type, error_message, http_status, duration_ms, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		health.ID, health.RunID, health.SourceID, string(health.Status),
		health.ItemsExtracted, health.ItemsCreated, health.ItemsSkipped,
		string(health.ErrorType), health.ErrorMessage, health.HTTPStatus,
		health.DurationMS, health.RecordedAt,
	)
	return eris.Wrap(err, "postgres: insert connector health")
}

func (s *PostgresStore) ListConnectorHealth(ctx context.Context, sourceID string, limit int) ([]model.ConnectorHealth, error) {
	query := `SELECT id, run_id, source_id, status, items_extracted, items_created, items_skipped, error_type, error_message, http_status, duration_ms, recorded_at FROM connector_health WHERE true`
	args := []any{}
	argIdx := 1

	if sourceID != "" {
		query += fmt.Sprintf(` AND source_id = $%d`, argIdx)
		args = append(args, sourceID)
		argIdx++
	}
	query += ` ORDER BY recorded_at DESC`

	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list connector health")
	}
	defer rows.Close()

	var out []model.ConnectorHealth
	for rows.Next() {
		var h model.ConnectorHealth
		var errType, errMsg *string
		var httpStatus *int
		if err := rows.Scan(&h.ID, &h.RunID, &h.SourceID, &h.Status,
			&h.ItemsExtracted, &h.ItemsCreated, &h.ItemsSkipped,
			&errType, &errMsg, &httpStatus, &h.DurationMS, &h.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan connector health")
		}
		if errType != nil {
			h.ErrorType = model.ErrorType(*errType)
		}
		if errMsg != nil {
			h.ErrorMessage = *errMsg
		}
		if httpStatus != nil {
			h.HTTPStatus = *httpStatus
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list connector health iterate")
}

// InsertTrendSnapshot writes the snapshot row, then bulk-copies the series
// points into trend_points so they can be queried without unpacking JSON.
func (s *PostgresStore) InsertTrendSnapshot(ctx context.Context, snap model.TrendSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trend_snapshots (id, metric, category, geography, snapshot, computed_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.Metric, string(snap.Category), snap.Geography, snapJSON, snap.ComputedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert trend snapshot")
	}

	if len(snap.Series) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(snap.Series))
	for _, p := range snap.Series {
		rows = append(rows, []any{snap.ID, p.Date, p.Value, p.Average})
	}
	_, err = db.CopyFrom(ctx, s.pool, "trend_points",
		[]string{"snapshot_id", "date", "value", "average"}, rows)
	return eris.Wrap(err, "postgres: copy trend points")
}

func (s *PostgresStore) CreatePriceChangeEvent(ctx context.Context, event model.PriceChangeEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_change_events (id, evidence_id, item_name, source_id, previous_value, new_value, percent_change, direction, severity, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.EvidenceID, event.ItemName, event.SourceID,
		event.PreviousValue, event.NewValue, event.PercentChange,
		string(event.Direction), string(event.Severity), event.DetectedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert price change event")
	}
	return event.ID, nil
}

func (s *PostgresStore) InsertProjectInsight(ctx context.Context, insight model.Insight) (string, error) {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO insights (id, category, title, body, severity, source_evidence_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		insight.ID, string(insight.Category), insight.Title, insight.Body,
		string(insight.Severity), insight.SourceEvidenceID, insight.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert insight")
	}
	return insight.ID, nil
}

// BulkImportEvidence upserts pre-normalized evidence records in one batch.
// Used by historical imports, where records arrive by the thousand and the
// per-row insert path would be too slow.
func (s *PostgresStore) BulkImportEvidence(ctx context.Context, records []model.EvidenceRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		evidenceJSON, err := json.Marshal(rec.Evidence)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal evidence")
		}
		rows = append(rows, []any{
			rec.ID, rec.SourceID, rec.SourceURL, rec.ItemName, string(rec.Category),
			rec.Geography, evidenceJSON, rec.DedupKey(), rec.CapturedAt,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "evidence_records",
		Columns:      []string{"id", "source_id", "source_url", "item_name", "category", "geography", "evidence", "dedup_key", "captured_at"},
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *PostgresStore) scanEvidenceRow(row pgx.Row) (*model.EvidenceRecord, error) {
	var rec model.EvidenceRecord
	var geography *string
	var evidenceJSON []byte

	err := row.Scan(&rec.ID, &rec.SourceID, &rec.SourceURL, &rec.ItemName,
		&rec.Category, &geography, &evidenceJSON, &rec.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: scan evidence record")
	}

	if geography != nil {
		rec.Geography = *geography
	}
	if err := json.Unmarshal(evidenceJSON, &rec.Evidence); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal evidence")
	}
	return &rec, nil
}
