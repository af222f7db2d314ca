package coverage

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/model"
)

// averageCostPerYearUSD is the observed mean LLM spend for one year's full
// generate-critique-revise pass.
const averageCostPerYearUSD = 0.15

// demandShare is the fraction of each batch allocated to high-demand
// deficient years; the remainder goes to strategic era coverage.
const demandShare = 0.80

// PoolReader is the read-only view of the event pool the planner consumes.
type PoolReader interface {
	YearStats(ctx context.Context) ([]model.YearPoolStat, error)
	DemandStats(ctx context.Context) ([]model.DemandStat, error)
}

// Planner produces coverage strategies from live pool state. The supported
// year range is signed: BCE years are negative.
type Planner struct {
	pool    PoolReader
	minYear int
	maxYear int
}

func NewPlanner(pool PoolReader, minYear, maxYear int) *Planner {
	return &Planner{pool: pool, minYear: minYear, maxYear: maxYear}
}

// SelectWork picks up to count years to generate content for: roughly 80%
// high-demand missing/insufficient years, the rest strategic coverage that
// guarantees at least one pick per era bucket so no era permanently
// starves. Returned years are signed.
func (p *Planner) SelectWork(ctx context.Context, count int) (*model.CoverageStrategy, error) {
	if count <= 0 {
		return nil, eris.New("coverage: count must be positive")
	}

	stats, err := p.pool.YearStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: read year stats")
	}
	demandStats, err := p.pool.DemandStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: read demand stats")
	}

	analysis := AnalyzeGaps(stats, p.minYear, p.maxYear)
	demand := AnalyzeDemand(demandStats)

	selected := make(map[int]Gap, count)
	var order []int
	pick := func(g Gap) bool {
		signed := model.SignedYear(g.Year, g.Era)
		if _, dup := selected[signed]; dup {
			return false
		}
		selected[signed] = g
		order = append(order, signed)
		return true
	}

	// Demand-ranked fill: high-demand missing/insufficient years first.
	demandBudget := int(float64(count)*demandShare + 0.5)
	var deficient []Gap
	for _, g := range analysis.Gaps {
		if g.Kind == GapMissing || g.Kind == GapInsufficient {
			deficient = append(deficient, g)
		}
	}
	for _, g := range demand.rankByDemand(deficient) {
		if len(order) >= demandBudget {
			break
		}
		pick(g)
	}

	// Era-balance guarantee: every bucket gets at least one pick, falling
	// back to the bucket's least-stocked year when it has no open gap.
	for _, bucket := range model.AllEraBuckets() {
		if bucketCovered(selected, bucket) {
			continue
		}
		if g, ok := p.bucketPick(analysis.Gaps, stats, bucket); ok {
			pick(g)
		}
	}

	// Remaining strategic slots: worst gaps of any kind.
	remaining := append([]Gap(nil), analysis.Gaps...)
	sortGaps(remaining)
	for _, g := range remaining {
		if len(order) >= count {
			break
		}
		pick(g)
	}

	if len(order) > count {
		// Bucket guarantees may have pushed past the budget; trim from the
		// demand tail, never from the guaranteed picks.
		order = trimPreservingBuckets(order, selected, count)
	}

	strategy := &model.CoverageStrategy{
		TargetYears:      order,
		Priority:         overallPriority(selected, order),
		EraBalance:       balanceOf(selected, order),
		EstimatedCostUSD: float64(len(order)) * averageCostPerYearUSD,
	}
	zap.L().Debug("coverage strategy planned",
		zap.Int("requested", count),
		zap.Int("selected", len(order)),
		zap.String("priority", string(strategy.Priority)),
		zap.Float64("estimated_cost_usd", strategy.EstimatedCostUSD),
	)
	return strategy, nil
}

// bucketPick returns the best year to generate for a bucket: its worst open
// gap, or failing that its least-stocked healthy year.
func (p *Planner) bucketPick(gaps []Gap, stats []model.YearPoolStat, bucket model.EraBucket) (Gap, bool) {
	var bucketGaps []Gap
	for _, g := range gaps {
		if model.BucketFor(g.Year, g.Era) == bucket {
			bucketGaps = append(bucketGaps, g)
		}
	}
	if len(bucketGaps) > 0 {
		sortGaps(bucketGaps)
		return bucketGaps[0], true
	}

	// No open gap: re-stock the bucket's least-stocked known year, even when
	// it sits outside the current scan range. An era must never starve just
	// because today's gaps all fall elsewhere.
	best := Gap{Kind: GapInsufficient}
	found := false
	bestUnused := 0
	for _, s := range stats {
		if model.BucketFor(s.Year, s.Era) != bucket {
			continue
		}
		if !found || s.Unused < bestUnused {
			best.Year, best.Era, best.Unused = s.Year, s.Era, s.Unused
			bestUnused = s.Unused
			found = true
		}
	}
	return best, found
}

func bucketCovered(selected map[int]Gap, bucket model.EraBucket) bool {
	for _, g := range selected {
		if model.BucketFor(g.Year, g.Era) == bucket {
			return true
		}
	}
	return false
}

// trimPreservingBuckets shrinks the selection to count entries, dropping from
// the low-demand tail while keeping each era bucket's highest-ranked pick.
func trimPreservingBuckets(order []int, selected map[int]Gap, count int) []int {
	keep := make(map[int]bool, 3)
	covered := make(map[model.EraBucket]bool, 3)
	for _, signed := range order {
		g := selected[signed]
		if bucket := model.BucketFor(g.Year, g.Era); !covered[bucket] {
			covered[bucket] = true
			keep[signed] = true
		}
	}

	slack := len(order) - count
	drop := make(map[int]bool, slack)
	for i := len(order) - 1; i >= 0 && slack > 0; i-- {
		signed := order[i]
		if keep[signed] {
			continue
		}
		drop[signed] = true
		delete(selected, signed)
		slack--
	}

	out := make([]int, 0, count)
	for _, signed := range order {
		if !drop[signed] {
			out = append(out, signed)
		}
	}
	return out
}

func overallPriority(selected map[int]Gap, order []int) model.CoveragePriority {
	hasLowQuality := false
	for _, signed := range order {
		switch selected[signed].Kind {
		case GapMissing, GapInsufficient:
			return model.PriorityMissing
		case GapLowQuality:
			hasLowQuality = true
		}
	}
	if hasLowQuality {
		return model.PriorityLowQuality
	}
	return model.PriorityStrategic
}

func balanceOf(selected map[int]Gap, order []int) model.EraBalance {
	var b model.EraBalance
	for _, signed := range order {
		g := selected[signed]
		switch model.BucketFor(g.Year, g.Era) {
		case model.BucketAncient:
			b.Ancient++
		case model.BucketMedieval:
			b.Medieval++
		case model.BucketModern:
			b.Modern++
		}
	}
	return b
}
