// Package coverage decides which years the batch should generate content
// for next. Planning is a pure function of current pool and demand state;
// nothing here is persisted.
package coverage

import (
	"sort"

	"github.com/timewise-games/content-cli/internal/model"
)

// Pool health thresholds.
const (
	// minUnusedEvents is the floor below which a year counts as insufficient.
	minUnusedEvents = 6
	// maxFlaggedFraction is the flagged share above which a year counts as
	// low quality.
	maxFlaggedFraction = 0.40
)

// GapKind classifies a year's pool deficiency.
type GapKind string

const (
	GapMissing      GapKind = "missing"
	GapInsufficient GapKind = "insufficient"
	GapLowQuality   GapKind = "low_quality"
)

// Gap is one deficient year. Year is signed: BCE years are negative.
type Gap struct {
	Year   int
	Era    model.Era
	Kind   GapKind
	Unused int
}

// GapAnalysis partitions the supported year range by pool health.
type GapAnalysis struct {
	Gaps []Gap
	// UnusedByBucket aggregates unused-event counts per era bucket.
	UnusedByBucket map[model.EraBucket]int
}

// severity orders gap kinds worst-first for ranking.
func (g Gap) severity() int {
	switch g.Kind {
	case GapMissing:
		return 0
	case GapInsufficient:
		return 1
	default:
		return 2
	}
}

// AnalyzeGaps scans every year in [minYear, maxYear] (signed, BCE negative)
// against the pool stats. Years absent from stats are missing; years with
// fewer than minUnusedEvents unused events are insufficient; years whose
// flagged share exceeds maxFlaggedFraction are low quality.
func AnalyzeGaps(stats []model.YearPoolStat, minYear, maxYear int) GapAnalysis {
	byYear := make(map[int]model.YearPoolStat, len(stats))
	unusedByBucket := make(map[model.EraBucket]int, 3)
	for _, s := range stats {
		signed := model.SignedYear(s.Year, s.Era)
		byYear[signed] = s
		unusedByBucket[model.BucketFor(s.Year, s.Era)] += s.Unused
	}

	var gaps []Gap
	for signed := minYear; signed <= maxYear; signed++ {
		if signed == 0 {
			// Year zero does not exist in the BCE/CE convention.
			continue
		}
		year, era := model.FromSigned(signed)

		s, ok := byYear[signed]
		switch {
		case !ok || s.Total == 0:
			gaps = append(gaps, Gap{Year: year, Era: era, Kind: GapMissing})
		case s.Unused < minUnusedEvents:
			gaps = append(gaps, Gap{Year: year, Era: era, Kind: GapInsufficient, Unused: s.Unused})
		case s.Total > 0 && float64(s.Flagged)/float64(s.Total) > maxFlaggedFraction:
			gaps = append(gaps, Gap{Year: year, Era: era, Kind: GapLowQuality, Unused: s.Unused})
		}
	}

	return GapAnalysis{Gaps: gaps, UnusedByBucket: unusedByBucket}
}

// sortGaps orders gaps by severity, then chronologically.
func sortGaps(gaps []Gap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].severity() != gaps[j].severity() {
			return gaps[i].severity() < gaps[j].severity()
		}
		return model.SignedYear(gaps[i].Year, gaps[i].Era) < model.SignedYear(gaps[j].Year, gaps[j].Era)
	})
}
