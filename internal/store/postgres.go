package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/db"
	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
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

const (
	sqlMarkConsumed = `UPDATE events SET consumed_by = $1 WHERE id = ANY($2)`
	sqlYearStats    = `SELECT year, era,
		COUNT(*) FILTER (WHERE consumed_by IS NULL OR consumed_by = ''),
		COUNT(*) FILTER (WHERE flagged),
		COUNT(*)
	FROM events GROUP BY year, era ORDER BY year`
	sqlRecordSelection = `INSERT INTO selections (id, year, era, selected_at) VALUES ($1, $2, $3, $4)`
	sqlDemandStats     = `SELECT year, era, COUNT(*) FROM selections GROUP BY year, era ORDER BY year`
	sqlEnqueueDLQ      = `INSERT INTO dlq (id, year, era, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (year, era) DO UPDATE SET
		error = EXCLUDED.error,
		error_type = EXCLUDED.error_type,
		retry_count = dlq.retry_count + 1,
		next_retry_at = EXCLUDED.next_retry_at,
		last_failed_at = EXCLUDED.last_failed_at,
		resolved_at = NULL`
	sqlListRetryableDLQ = `SELECT id, year, era, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	FROM dlq
	WHERE resolved_at IS NULL AND error_type = 'transient' AND retry_count < max_retries AND next_retry_at <= $1
	ORDER BY next_retry_at`
	sqlResolveDLQ = `UPDATE dlq SET resolved_at = $1 WHERE id = $2`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"mark_consumed":      sqlMarkConsumed,
	"year_stats":         sqlYearStats,
	"record_selection":   sqlRecordSelection,
	"demand_stats":       sqlDemandStats,
	"enqueue_dlq":        sqlEnqueueDLQ,
	"list_retryable_dlq": sqlListRetryableDLQ,
	"resolve_dlq":        sqlResolveDLQ,
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

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	year            INTEGER NOT NULL,
	era             TEXT NOT NULL,
	canonical_title TEXT NOT NULL,
	event_text      TEXT NOT NULL,
	geo             TEXT NOT NULL,
	difficulty      INTEGER NOT NULL,
	metadata        JSONB,
	flagged         BOOLEAN NOT NULL DEFAULT FALSE,
	consumed_by     TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS selections (
	id          TEXT PRIMARY KEY,
	year        INTEGER NOT NULL,
	era         TEXT NOT NULL,
	selected_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dlq (
	id             TEXT PRIMARY KEY,
	year           INTEGER NOT NULL,
	era            TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL,
	resolved_at    TIMESTAMPTZ,
	UNIQUE (year, era)
);

CREATE INDEX IF NOT EXISTS idx_events_year_era ON events(year, era);
CREATE INDEX IF NOT EXISTS idx_events_consumed_by ON events(consumed_by);
CREATE INDEX IF NOT EXISTS idx_selections_year_era ON selections(year, era);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dlq(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

var eventColumns = []string{
	"id", "year", "era", "canonical_title", "event_text", "geo",
	"difficulty", "metadata", "flagged", "created_at",
}

// InsertEvents bulk-inserts via the COPY protocol.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []model.PoolEvent) (int, error) {
	rows := make([][]any, 0, len(events))
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		metadataJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal event metadata")
		}
		rows = append(rows, []any{
			ev.ID, model.SignedYear(ev.Year, ev.Era), string(ev.Era),
			ev.CanonicalTitle, ev.EventText, ev.Geo, ev.Difficulty,
			metadataJSON, ev.Flagged, ev.CreatedAt,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "events", eventColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert events")
	}
	return int(n), nil
}

func (s *PostgresStore) MarkConsumed(ctx context.Context, eventIDs []string, consumedBy string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx, sqlMarkConsumed, consumedBy, eventIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: mark consumed")
	}
	if tag.RowsAffected() != int64(len(eventIDs)) {
		return eris.Errorf("postgres: marked %d of %d events consumed", tag.RowsAffected(), len(eventIDs))
	}
	return nil
}

func (s *PostgresStore) YearStats(ctx context.Context) ([]model.YearPoolStat, error) {
	rows, err := s.pool.Query(ctx, sqlYearStats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: year stats")
	}
	defer rows.Close()

	var stats []model.YearPoolStat
	for rows.Next() {
		var st model.YearPoolStat
		var signed int
		var era string
		if err := rows.Scan(&signed, &era, &st.Unused, &st.Flagged, &st.Total); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year stats")
		}
		st.Year, st.Era = model.FromSigned(signed)
		if model.Era(era).Valid() {
			st.Era = model.Era(era)
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: year stats iterate")
}

func (s *PostgresStore) RecordSelection(ctx context.Context, year int, era model.Era) error {
	_, err := s.pool.Exec(ctx, sqlRecordSelection,
		uuid.New().String(), model.SignedYear(year, era), string(era), time.Now().UTC())
	return eris.Wrap(err, "postgres: record selection")
}

func (s *PostgresStore) DemandStats(ctx context.Context) ([]model.DemandStat, error) {
	rows, err := s.pool.Query(ctx, sqlDemandStats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: demand stats")
	}
	defer rows.Close()

	var stats []model.DemandStat
	for rows.Next() {
		var st model.DemandStat
		var signed int
		var era string
		if err := rows.Scan(&signed, &era, &st.Selections); err != nil {
			return nil, eris.Wrap(err, "postgres: scan demand stats")
		}
		st.Year, st.Era = model.FromSigned(signed)
		if model.Era(era).Valid() {
			st.Era = model.Era(era)
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: demand stats iterate")
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastFailedAt.IsZero() {
		entry.LastFailedAt = now
	}

	_, err := s.pool.Exec(ctx, sqlEnqueueDLQ,
		entry.ID, model.SignedYear(entry.Year, entry.Era), string(entry.Era),
		entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListRetryableDLQ(ctx context.Context, now time.Time) ([]resilience.DLQEntry, error) {
	rows, err := s.pool.Query(ctx, sqlListRetryableDLQ, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list retryable dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var signed int
		var era string
		if err := rows.Scan(&e.ID, &signed, &era, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		e.Year, _ = model.FromSigned(signed)
		e.Era = model.Era(era)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) ResolveDLQ(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, sqlResolveDLQ, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve dlq %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
