package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// PoolSnapshot holds a point-in-time view of event-pool health.
type PoolSnapshot struct {
	TotalEvents   int     `json:"total_events"`
	UnusedEvents  int     `json:"unused_events"`
	FlaggedEvents int     `json:"flagged_events"`
	FlaggedRate   float64 `json:"flagged_rate"`
	YearsCovered  int     `json:"years_covered"`

	// UnusedByBucket aggregates unused events per era bucket.
	UnusedByBucket map[model.EraBucket]int `json:"unused_by_bucket"`

	// DLQDepth counts failed years still awaiting a successful retry.
	DLQDepth int `json:"dlq_depth"`

	CollectedAt time.Time `json:"collected_at"`
}

// PoolQuerier abstracts the store methods the collector needs.
type PoolQuerier interface {
	YearStats(ctx context.Context) ([]model.YearPoolStat, error)
	ListRetryableDLQ(ctx context.Context, now time.Time) ([]resilience.DLQEntry, error)
}

// Collector gathers pool-health metrics from the store.
type Collector struct {
	store PoolQuerier
}

func NewCollector(store PoolQuerier) *Collector {
	return &Collector{store: store}
}

// Collect gathers a snapshot of pool health.
func (c *Collector) Collect(ctx context.Context) (*PoolSnapshot, error) {
	snap := &PoolSnapshot{
		UnusedByBucket: make(map[model.EraBucket]int, 3),
		CollectedAt:    time.Now().UTC(),
	}

	stats, err := c.store.YearStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: year stats")
	}
	for _, s := range stats {
		snap.TotalEvents += s.Total
		snap.UnusedEvents += s.Unused
		snap.FlaggedEvents += s.Flagged
		snap.UnusedByBucket[model.BucketFor(s.Year, s.Era)] += s.Unused
	}
	snap.YearsCovered = len(stats)
	if snap.TotalEvents > 0 {
		snap.FlaggedRate = float64(snap.FlaggedEvents) / float64(snap.TotalEvents)
	}

	// Count everything still queued, including entries not yet due.
	entries, err := c.store.ListRetryableDLQ(ctx, time.Now().UTC().Add(24*time.Hour*365))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: dlq depth")
	}
	snap.DLQDepth = len(entries)

	return snap, nil
}
