package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func poolEvent(year int, era model.Era, title string) model.PoolEvent {
	return model.PoolEvent{
		Year:           year,
		Era:            era,
		CanonicalTitle: title,
		EventText:      "a notable thing happens",
		Geo:            "somewhere",
		Difficulty:     2,
		Metadata:       map[string]string{"category": "politics"},
	}
}

func TestSQLiteStore_InsertAndYearStats(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	flaggedEvent := poolEvent(44, model.EraBCE, "Flagged One")
	flaggedEvent.Flagged = true

	n, err := s.InsertEvents(ctx, []model.PoolEvent{
		poolEvent(44, model.EraBCE, "Ides of March"),
		flaggedEvent,
		poolEvent(1969, model.EraCE, "Moon Landing"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err := s.YearStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Ordered by signed year: BCE first.
	assert.Equal(t, model.YearPoolStat{Year: 44, Era: model.EraBCE, Unused: 2, Flagged: 1, Total: 2}, stats[0])
	assert.Equal(t, model.YearPoolStat{Year: 1969, Era: model.EraCE, Unused: 1, Total: 1}, stats[1])
}

func TestSQLiteStore_MarkConsumed(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	events := []model.PoolEvent{
		poolEvent(800, model.EraCE, "Imperial Coronation"),
		poolEvent(800, model.EraCE, "Another Event"),
	}
	_, err := s.InsertEvents(ctx, events)
	require.NoError(t, err)

	require.NoError(t, s.MarkConsumed(ctx, []string{events[0].ID}, "puzzle-2026-08-23"))

	stats, err := s.YearStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Unused)
	assert.Equal(t, 2, stats[0].Total)

	err = s.MarkConsumed(ctx, []string{"no-such-id"}, "puzzle-x")
	assert.Error(t, err, "unknown ids must not silently succeed")
}

func TestSQLiteStore_DemandStats(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordSelection(ctx, 1969, model.EraCE))
	}
	require.NoError(t, s.RecordSelection(ctx, 44, model.EraBCE))

	stats, err := s.DemandStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, model.DemandStat{Year: 44, Era: model.EraBCE, Selections: 1}, stats[0])
	assert.Equal(t, model.DemandStat{Year: 1969, Era: model.EraCE, Selections: 3}, stats[1])
}

func TestSQLiteStore_DLQLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := resilience.DLQEntry{
		Year: 1349, Era: model.EraCE,
		Error: "rate limited", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: now.Add(-time.Minute),
	}
	require.NoError(t, s.EnqueueDLQ(ctx, entry))

	due, err := s.ListRetryableDLQ(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1349, due[0].Year)
	assert.Equal(t, 0, due[0].RetryCount)

	// Re-enqueueing the same year bumps the retry count instead of adding a
	// second row.
	entry.Error = "rate limited again"
	require.NoError(t, s.EnqueueDLQ(ctx, entry))

	due, err = s.ListRetryableDLQ(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.Equal(t, "rate limited again", due[0].Error)

	require.NoError(t, s.ResolveDLQ(ctx, due[0].ID))
	due, err = s.ListRetryableDLQ(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLiteStore_DLQFiltersPermanentAndFuture(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.EnqueueDLQ(ctx, resilience.DLQEntry{
		Year: 100, Era: model.EraCE,
		Error: "bad request", ErrorType: "permanent",
		MaxRetries: 3, NextRetryAt: now.Add(-time.Hour),
	}))
	require.NoError(t, s.EnqueueDLQ(ctx, resilience.DLQEntry{
		Year: 200, Era: model.EraCE,
		Error: "rate limited", ErrorType: "transient",
		MaxRetries: 3, NextRetryAt: now.Add(time.Hour),
	}))

	due, err := s.ListRetryableDLQ(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "permanent and not-yet-due entries are excluded")
}
