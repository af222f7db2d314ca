package coverage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/model"
)

type stubPool struct {
	years  []model.YearPoolStat
	demand []model.DemandStat
	err    error
}

func (s *stubPool) YearStats(context.Context) ([]model.YearPoolStat, error) {
	return s.years, s.err
}

func (s *stubPool) DemandStats(context.Context) ([]model.DemandStat, error) {
	return s.demand, s.err
}

func healthy(year int, era model.Era) model.YearPoolStat {
	return model.YearPoolStat{Year: year, Era: era, Unused: 10, Total: 12}
}

func TestAnalyzeGaps(t *testing.T) {
	t.Parallel()

	stats := []model.YearPoolStat{
		healthy(100, model.EraBCE),                                       // ancient, fine
		{Year: 800, Era: model.EraCE, Unused: 2, Total: 5},               // insufficient
		{Year: 1900, Era: model.EraCE, Unused: 8, Flagged: 5, Total: 10}, // low quality
	}

	analysis := AnalyzeGaps(stats, -100, -100)
	assert.Empty(t, analysis.Gaps, "healthy year produces no gap")

	analysis = AnalyzeGaps(stats, 799, 801)
	require.Len(t, analysis.Gaps, 3)
	assert.Equal(t, Gap{Year: 799, Era: model.EraCE, Kind: GapMissing}, analysis.Gaps[0])
	assert.Equal(t, GapInsufficient, analysis.Gaps[1].Kind)
	assert.Equal(t, GapMissing, analysis.Gaps[2].Kind)

	analysis = AnalyzeGaps(stats, 1900, 1900)
	require.Len(t, analysis.Gaps, 1)
	assert.Equal(t, GapLowQuality, analysis.Gaps[0].Kind)

	assert.Equal(t, 10, analysis.UnusedByBucket[model.BucketAncient])
	assert.Equal(t, 2, analysis.UnusedByBucket[model.BucketMedieval])
	assert.Equal(t, 8, analysis.UnusedByBucket[model.BucketModern])
}

func TestAnalyzeGaps_SkipsYearZero(t *testing.T) {
	t.Parallel()

	analysis := AnalyzeGaps(nil, -1, 1)
	require.Len(t, analysis.Gaps, 2)
	assert.Equal(t, 1, analysis.Gaps[0].Year)
	assert.Equal(t, model.EraBCE, analysis.Gaps[0].Era)
	assert.Equal(t, 1, analysis.Gaps[1].Year)
	assert.Equal(t, model.EraCE, analysis.Gaps[1].Era)
}

func TestSelectWork_RanksDeficientYearsByDemand(t *testing.T) {
	t.Parallel()

	// Three missing modern years; 1969 is in far higher demand.
	pool := &stubPool{
		years: []model.YearPoolStat{healthy(1970, model.EraCE)},
		demand: []model.DemandStat{
			{Year: 1969, Era: model.EraCE, Selections: 40},
			{Year: 1968, Era: model.EraCE, Selections: 3},
		},
	}
	planner := NewPlanner(pool, 1967, 1970)

	strategy, err := planner.SelectWork(context.Background(), 2)
	require.NoError(t, err)

	require.NotEmpty(t, strategy.TargetYears)
	assert.Equal(t, 1969, strategy.TargetYears[0])
	assert.Equal(t, model.PriorityMissing, strategy.Priority)
	assert.InDelta(t, float64(len(strategy.TargetYears))*averageCostPerYearUSD, strategy.EstimatedCostUSD, 1e-9)
}

func TestSelectWork_EraBalanceInvariant(t *testing.T) {
	t.Parallel()

	// Ancient and medieval pools are healthy; only modern years are missing
	// or insufficient. The strategy must still touch every era bucket.
	pool := &stubPool{
		years: []model.YearPoolStat{
			healthy(44, model.EraBCE),
			healthy(100, model.EraCE),
			{Year: 800, Era: model.EraCE, Unused: 7, Total: 8},
			{Year: 1910, Era: model.EraCE, Unused: 1, Total: 2},
		},
		demand: []model.DemandStat{
			{Year: 1905, Era: model.EraCE, Selections: 9},
			{Year: 1906, Era: model.EraCE, Selections: 8},
		},
	}
	// Range restricted so every missing year is modern except the healthy
	// ancient/medieval stat years.
	planner := NewPlanner(pool, 1900, 1912)

	strategy, err := planner.SelectWork(context.Background(), 10)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, strategy.EraBalance.Ancient, 1, "ancient bucket must not starve")
	assert.GreaterOrEqual(t, strategy.EraBalance.Medieval, 1, "medieval bucket must not starve")
	assert.GreaterOrEqual(t, strategy.EraBalance.Modern, 1)
	assert.LessOrEqual(t, len(strategy.TargetYears), 12, "bucket guarantees may exceed count only by the guaranteed picks")

	// High-demand modern years lead the selection.
	assert.Equal(t, 1905, strategy.TargetYears[0])
	assert.Equal(t, 1906, strategy.TargetYears[1])
}

func TestSelectWork_OverflowTrimDropsLowestDemandFirst(t *testing.T) {
	t.Parallel()

	// Two missing modern years in demand order, plus healthy ancient and
	// medieval pools. Bucket guarantees push the selection past count, so one
	// demand pick must go; it has to be the lower-demand 1906, never the
	// top-ranked 1905.
	pool := &stubPool{
		years: []model.YearPoolStat{
			healthy(44, model.EraBCE),
			healthy(800, model.EraCE),
		},
		demand: []model.DemandStat{
			{Year: 1905, Era: model.EraCE, Selections: 9},
			{Year: 1906, Era: model.EraCE, Selections: 8},
		},
	}
	planner := NewPlanner(pool, 1905, 1906)

	strategy, err := planner.SelectWork(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []int{1905, -44, 800}, strategy.TargetYears)
	assert.NotContains(t, strategy.TargetYears, 1906)
	assert.Equal(t, model.EraBalance{Ancient: 1, Medieval: 1, Modern: 1}, strategy.EraBalance)
}

func TestSelectWork_NoDuplicateYears(t *testing.T) {
	t.Parallel()

	pool := &stubPool{demand: []model.DemandStat{{Year: 1500, Era: model.EraCE, Selections: 5}}}
	planner := NewPlanner(pool, 1498, 1502)

	strategy, err := planner.SelectWork(context.Background(), 8)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, y := range strategy.TargetYears {
		assert.False(t, seen[y], "year %d selected twice", y)
		seen[y] = true
	}
}

func TestSelectWork_Errors(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(&stubPool{err: errors.New("db down")}, 1, 10)
	_, err := planner.SelectWork(context.Background(), 5)
	assert.Error(t, err)

	_, err = NewPlanner(&stubPool{}, 1, 10).SelectWork(context.Background(), 0)
	assert.Error(t, err)
}
