package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	year            INTEGER NOT NULL,
	era             TEXT NOT NULL,
	canonical_title TEXT NOT NULL,
	event_text      TEXT NOT NULL,
	geo             TEXT NOT NULL,
	difficulty      INTEGER NOT NULL,
	metadata        TEXT,
	flagged         INTEGER NOT NULL DEFAULT 0,
	consumed_by     TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS selections (
	id          TEXT PRIMARY KEY,
	year        INTEGER NOT NULL,
	era         TEXT NOT NULL,
	selected_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dlq (
	id             TEXT PRIMARY KEY,
	year           INTEGER NOT NULL,
	era            TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL,
	resolved_at    DATETIME,
	UNIQUE (year, era)
);

CREATE INDEX IF NOT EXISTS idx_events_year_era ON events(year, era);
CREATE INDEX IF NOT EXISTS idx_events_consumed_by ON events(consumed_by);
CREATE INDEX IF NOT EXISTS idx_selections_year_era ON selections(year, era);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dlq(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []model.PoolEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert events")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, year, era, canonical_title, event_text, geo, difficulty, metadata, flagged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert events")
	}
	defer stmt.Close()

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
			return 0, eris.Wrap(err, "sqlite: marshal event metadata")
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, model.SignedYear(ev.Year, ev.Era), string(ev.Era),
			ev.CanonicalTitle, ev.EventText, ev.Geo, ev.Difficulty,
			string(metadataJSON), ev.Flagged, ev.CreatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert event %s", ev.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert events")
	}
	return len(events), nil
}

func (s *SQLiteStore) MarkConsumed(ctx context.Context, eventIDs []string, consumedBy string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventIDs)), ", ")
	args := make([]any, 0, len(eventIDs)+1)
	args = append(args, consumedBy)
	for _, id := range eventIDs {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET consumed_by = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark consumed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n != int64(len(eventIDs)) {
		return eris.Errorf("sqlite: marked %d of %d events consumed", n, len(eventIDs))
	}
	return nil
}

func (s *SQLiteStore) YearStats(ctx context.Context) ([]model.YearPoolStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, era,
		       SUM(CASE WHEN consumed_by IS NULL OR consumed_by = '' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN flagged THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM events GROUP BY year, era ORDER BY year`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: year stats")
	}
	defer rows.Close()

	var stats []model.YearPoolStat
	for rows.Next() {
		var st model.YearPoolStat
		var signed int
		var era string
		if err := rows.Scan(&signed, &era, &st.Unused, &st.Flagged, &st.Total); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year stats")
		}
		st.Year, st.Era = model.FromSigned(signed)
		// The stored era column wins over the sign when they disagree.
		if model.Era(era).Valid() {
			st.Era = model.Era(era)
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: year stats iterate")
}

func (s *SQLiteStore) RecordSelection(ctx context.Context, year int, era model.Era) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO selections (id, year, era, selected_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), model.SignedYear(year, era), string(era), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record selection")
}

func (s *SQLiteStore) DemandStats(ctx context.Context) ([]model.DemandStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, era, COUNT(*) FROM selections GROUP BY year, era ORDER BY year`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: demand stats")
	}
	defer rows.Close()

	var stats []model.DemandStat
	for rows.Next() {
		var st model.DemandStat
		var signed int
		var era string
		if err := rows.Scan(&signed, &era, &st.Selections); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan demand stats")
		}
		st.Year, st.Era = model.FromSigned(signed)
		if model.Era(era).Valid() {
			st.Era = model.Era(era)
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: demand stats iterate")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dlq (id, year, era, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year, era) DO UPDATE SET
			error = excluded.error,
			error_type = excluded.error_type,
			retry_count = dlq.retry_count + 1,
			next_retry_at = excluded.next_retry_at,
			last_failed_at = excluded.last_failed_at,
			resolved_at = NULL`,
		entry.ID, model.SignedYear(entry.Year, entry.Era), string(entry.Era),
		entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListRetryableDLQ(ctx context.Context, now time.Time) ([]resilience.DLQEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, era, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		FROM dlq
		WHERE resolved_at IS NULL
		  AND error_type = 'transient'
		  AND retry_count < max_retries
		  AND next_retry_at <= ?
		ORDER BY next_retry_at`, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list retryable dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var signed int
		var era string
		if err := rows.Scan(&e.ID, &signed, &era, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		e.Year, _ = model.FromSigned(signed)
		e.Era = model.Era(era)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) ResolveDLQ(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dlq SET resolved_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve dlq %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
