// Package store persists the event pool, puzzle-selection demand counters,
// and the failed-year dead letter queue behind one interface with SQLite and
// Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// Store defines the persistence interface for the content pipeline. Years
// are stored signed: BCE years are negative.
type Store interface {
	// Event pool
	InsertEvents(ctx context.Context, events []model.PoolEvent) (int, error)
	MarkConsumed(ctx context.Context, eventIDs []string, consumedBy string) error
	YearStats(ctx context.Context) ([]model.YearPoolStat, error)

	// Selection demand
	RecordSelection(ctx context.Context, year int, era model.Era) error
	DemandStats(ctx context.Context) ([]model.DemandStat, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListRetryableDLQ(ctx context.Context, now time.Time) ([]resilience.DLQEntry, error)
	ResolveDLQ(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
