package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock, closeFn: mock.Close}, mock
}

func TestPostgresStore_InsertEvents_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom([]string{"events"}, eventColumns).WillReturnResult(2)

	n, err := s.InsertEvents(context.Background(), []model.PoolEvent{
		{Year: 44, Era: model.EraBCE, CanonicalTitle: "Ides of March", EventText: "A dictator is assassinated in the senate", Geo: "Rome", Difficulty: 1},
		{Year: 1969, Era: model.EraCE, CanonicalTitle: "Moon Landing", EventText: "Astronauts walk on the lunar surface", Geo: "Sea of Tranquility", Difficulty: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertEvents_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.InsertEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkConsumed_PartialUpdateFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE events SET consumed_by`).
		WithArgs("puzzle-7", []string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkConsumed(context.Background(), []string{"a", "b"}, "puzzle-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marked 1 of 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_YearStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT year, era`).
		WillReturnRows(pgxmock.NewRows([]string{"year", "era", "unused", "flagged", "total"}).
			AddRow(-44, "BCE", 3, 1, 5).
			AddRow(1969, "CE", 10, 0, 12))

	stats, err := s.YearStats(context.Background())
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, model.YearPoolStat{Year: 44, Era: model.EraBCE, Unused: 3, Flagged: 1, Total: 5}, stats[0])
	assert.Equal(t, model.YearPoolStat{Year: 1969, Era: model.EraCE, Unused: 10, Total: 12}, stats[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordSelectionAndDemand(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO selections`).
		WithArgs(pgxmock.AnyArg(), -44, "BCE", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT year, era, COUNT`).
		WillReturnRows(pgxmock.NewRows([]string{"year", "era", "count"}).AddRow(-44, "BCE", 7))

	require.NoError(t, s.RecordSelection(context.Background(), 44, model.EraBCE))

	stats, err := s.DemandStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, model.DemandStat{Year: 44, Era: model.EraBCE, Selections: 7}, stats[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueDLQ_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), 1349, "CE", "rate limited", "transient",
			0, 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.EnqueueDLQ(context.Background(), resilience.DLQEntry{
		Year: 1349, Era: model.EraCE, Error: "rate limited", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveDLQ_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE dlq SET resolved_at`).
		WithArgs(pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ResolveDLQ(context.Background(), "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_YearStats_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT year, era`).WillReturnError(errors.New("connection reset"))

	_, err := s.YearStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year stats")
	assert.NoError(t, mock.ExpectationsWereMet())
}
