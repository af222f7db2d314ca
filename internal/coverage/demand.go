package coverage

import (
	"sort"

	"github.com/timewise-games/content-cli/internal/model"
)

// DemandAnalysis maps signed years to historical puzzle-selection counts.
type DemandAnalysis struct {
	selections map[int]int
}

// AnalyzeDemand indexes selection counts by signed year.
func AnalyzeDemand(stats []model.DemandStat) DemandAnalysis {
	selections := make(map[int]int, len(stats))
	for _, s := range stats {
		selections[model.SignedYear(s.Year, s.Era)] += s.Selections
	}
	return DemandAnalysis{selections: selections}
}

// Selections returns the demand count for a signed year, 0 when never
// selected.
func (d DemandAnalysis) Selections(signedYear int) int {
	return d.selections[signedYear]
}

// rankByDemand orders gaps by demand descending, then by gap severity, then
// chronologically, so high-demand deficient years are filled first.
func (d DemandAnalysis) rankByDemand(gaps []Gap) []Gap {
	ranked := append([]Gap(nil), gaps...)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := d.Selections(model.SignedYear(ranked[i].Year, ranked[i].Era))
		dj := d.Selections(model.SignedYear(ranked[j].Year, ranked[j].Era))
		if di != dj {
			return di > dj
		}
		if ranked[i].severity() != ranked[j].severity() {
			return ranked[i].severity() < ranked[j].severity()
		}
		return model.SignedYear(ranked[i].Year, ranked[i].Era) < model.SignedYear(ranked[j].Year, ranked[j].Era)
	})
	return ranked
}
