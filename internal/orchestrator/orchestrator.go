// Package orchestrator coordinates batch content generation: it asks the
// coverage planner what to work on, fans the year pipelines out under the
// rate limiter, isolates per-year failures, and persists the results.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/pipeline"
	"github.com/timewise-games/content-cli/internal/ratelimit"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// dlqRetryDelay spaces out re-attempts of failed years across batch runs.
const dlqRetryDelay = 15 * time.Minute

// dlqMaxRetries bounds how many batch runs may re-attempt a failed year.
const dlqMaxRetries = 3

// YearRunner runs the full generate-critique-revise pipeline for one year.
type YearRunner interface {
	RunYear(ctx context.Context, year int, era model.Era) (*pipeline.YearResult, error)
}

// WorkPlanner decides which years a batch should target.
type WorkPlanner interface {
	SelectWork(ctx context.Context, count int) (*model.CoverageStrategy, error)
}

// BatchStore is the persistence surface a batch run needs.
type BatchStore interface {
	InsertEvents(ctx context.Context, events []model.PoolEvent) (int, error)
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListRetryableDLQ(ctx context.Context, now time.Time) ([]resilience.DLQEntry, error)
	ResolveDLQ(ctx context.Context, id string) error
}

// Orchestrator fans year pipelines out concurrently, bounded by the rate
// limiter's burst capacity. One year failing never aborts the batch.
type Orchestrator struct {
	runner  YearRunner
	planner WorkPlanner
	limiter *ratelimit.Limiter
	store   BatchStore
}

func New(runner YearRunner, planner WorkPlanner, limiter *ratelimit.Limiter, store BatchStore) *Orchestrator {
	return &Orchestrator{runner: runner, planner: planner, limiter: limiter, store: store}
}

// GenerateDailyBatch plans targetCount years and runs them all. It returns
// an error only for configuration-level failures that make the whole batch
// meaningless; per-year failures land in the result and the DLQ.
func (o *Orchestrator) GenerateDailyBatch(ctx context.Context, targetCount int) (*model.BatchResult, error) {
	strategy, err := o.planner.SelectWork(ctx, targetCount)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: plan batch")
	}

	zap.L().Info("starting batch",
		zap.Int("target_count", targetCount),
		zap.Int("selected_years", len(strategy.TargetYears)),
		zap.String("priority", string(strategy.Priority)),
		zap.Float64("estimated_cost_usd", strategy.EstimatedCostUSD),
	)

	targets := make([]yearEra, 0, len(strategy.TargetYears))
	for _, signed := range strategy.TargetYears {
		year, era := model.FromSigned(signed)
		targets = append(targets, yearEra{year: year, era: era})
	}
	return o.run(ctx, targets)
}

// RetryFailed re-runs every due, retryable dead-letter year and resolves the
// entries that now succeed.
func (o *Orchestrator) RetryFailed(ctx context.Context) (*model.BatchResult, error) {
	entries, err := o.store.ListRetryableDLQ(ctx, time.Now().UTC())
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: list retryable years")
	}

	byYear := make(map[int]string, len(entries))
	targets := make([]yearEra, 0, len(entries))
	for _, e := range entries {
		byYear[model.SignedYear(e.Year, e.Era)] = e.ID
		targets = append(targets, yearEra{year: e.Year, era: e.Era})
	}

	result, err := o.run(ctx, targets)
	if err != nil {
		return nil, err
	}

	failed := make(map[int]bool, len(result.FailedYears))
	for _, y := range result.FailedYears {
		failed[y] = true
	}
	for signed, id := range byYear {
		if failed[signed] {
			continue
		}
		if err := o.store.ResolveDLQ(ctx, id); err != nil {
			zap.L().Warn("failed to resolve dead-letter entry", zap.String("id", id), zap.Error(err))
		}
	}
	return result, nil
}

type yearEra struct {
	year int
	era  model.Era
}

func (o *Orchestrator) run(ctx context.Context, targets []yearEra) (*model.BatchResult, error) {
	start := time.Now()
	result := &model.BatchResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limiter.Burst())

	for _, target := range targets {
		year, era := target.year, target.era

		g.Go(func() error {
			yr, err := ratelimit.ExecuteVal(gctx, o.limiter, func(ctx context.Context) (*pipeline.YearResult, error) {
				return o.runner.RunYear(ctx, year, era)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailureCount++
				result.FailedYears = append(result.FailedYears, model.SignedYear(year, era))
				o.deadLetter(ctx, year, era, err)
				return nil
			}
			result.SuccessCount++
			result.TotalCostUSD += yr.CostUSD
			o.persist(ctx, yr)
			return nil
		})
	}

	// Workers swallow per-year errors, so Wait only fails on context death.
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "orchestrator: batch interrupted")
	}

	sort.Ints(result.FailedYears)
	result.TotalDuration = time.Since(start)

	zap.L().Info("batch finished",
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
		zap.Float64("total_cost_usd", result.TotalCostUSD),
		zap.Duration("duration", result.TotalDuration),
	)
	return result, nil
}

// persist writes accepted events to the pool, and rejected events as flagged
// rows so coverage analysis can spot low-quality years. Storage failures
// degrade to logs; the batch keeps its result.
func (o *Orchestrator) persist(ctx context.Context, yr *pipeline.YearResult) {
	events := make([]model.PoolEvent, 0, len(yr.Accepted)+len(yr.Rejected))
	for _, ev := range yr.Accepted {
		events = append(events, toPoolEvent(yr.Year, yr.Era, ev, false))
	}
	for _, rej := range yr.Rejected {
		events = append(events, toPoolEvent(yr.Year, yr.Era, rej.Event, true))
	}

	if _, err := o.store.InsertEvents(ctx, events); err != nil {
		zap.L().Error("failed to persist year events",
			zap.Int("year", yr.Year),
			zap.String("era", string(yr.Era)),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) deadLetter(ctx context.Context, year int, era model.Era, cause error) {
	zap.L().Error("year pipeline failed",
		zap.Int("year", year),
		zap.String("era", string(era)),
		zap.Error(cause),
	)

	now := time.Now().UTC()
	entry := resilience.DLQEntry{
		Year:         year,
		Era:          era,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		MaxRetries:   dlqMaxRetries,
		NextRetryAt:  now.Add(dlqRetryDelay),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := o.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("failed to dead-letter year", zap.Int("year", year), zap.Error(err))
	}
}

func toPoolEvent(year int, era model.Era, ev model.CandidateEvent, flagged bool) model.PoolEvent {
	return model.PoolEvent{
		Year:           year,
		Era:            era,
		CanonicalTitle: ev.CanonicalTitle,
		EventText:      ev.EventText,
		Geo:            ev.Geo,
		Difficulty:     ev.DifficultyGuess,
		Metadata:       ev.Metadata,
		Flagged:        flagged,
	}
}
