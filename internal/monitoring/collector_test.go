package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

type stubQuerier struct {
	stats []model.YearPoolStat
	dlq   []resilience.DLQEntry
	err   error
}

func (s *stubQuerier) YearStats(context.Context) ([]model.YearPoolStat, error) {
	return s.stats, s.err
}

func (s *stubQuerier) ListRetryableDLQ(context.Context, time.Time) ([]resilience.DLQEntry, error) {
	return s.dlq, s.err
}

func TestCollector_Collect(t *testing.T) {
	t.Parallel()

	c := NewCollector(&stubQuerier{
		stats: []model.YearPoolStat{
			{Year: 44, Era: model.EraBCE, Unused: 4, Flagged: 1, Total: 6},
			{Year: 800, Era: model.EraCE, Unused: 2, Flagged: 0, Total: 2},
			{Year: 1969, Era: model.EraCE, Unused: 8, Flagged: 3, Total: 12},
		},
		dlq: []resilience.DLQEntry{{Year: 1349}, {Year: 1350}},
	})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, snap.TotalEvents)
	assert.Equal(t, 14, snap.UnusedEvents)
	assert.Equal(t, 4, snap.FlaggedEvents)
	assert.InDelta(t, 0.2, snap.FlaggedRate, 1e-9)
	assert.Equal(t, 3, snap.YearsCovered)
	assert.Equal(t, 4, snap.UnusedByBucket[model.BucketAncient])
	assert.Equal(t, 2, snap.UnusedByBucket[model.BucketMedieval])
	assert.Equal(t, 8, snap.UnusedByBucket[model.BucketModern])
	assert.Equal(t, 2, snap.DLQDepth)
}

func TestCollector_EmptyPool(t *testing.T) {
	t.Parallel()

	snap, err := NewCollector(&stubQuerier{}).Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.TotalEvents)
	assert.Zero(t, snap.FlaggedRate)
}

func TestCollector_StoreError(t *testing.T) {
	t.Parallel()

	_, err := NewCollector(&stubQuerier{err: errors.New("db down")}).Collect(context.Background())
	assert.Error(t, err)
}
