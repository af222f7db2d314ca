package model

// EraBucket groups years for coverage balancing.
type EraBucket string

const (
	BucketAncient  EraBucket = "ancient"  // < 500 CE (all BCE years included)
	BucketMedieval EraBucket = "medieval" // 500-1499 CE
	BucketModern   EraBucket = "modern"   // >= 1500 CE
)

// AllEraBuckets lists the buckets in chronological order.
func AllEraBuckets() []EraBucket {
	return []EraBucket{BucketAncient, BucketMedieval, BucketModern}
}

// BucketFor returns the era bucket for a year. BCE years are always ancient.
func BucketFor(year int, era Era) EraBucket {
	if era == EraBCE || year < 500 {
		return BucketAncient
	}
	if year < 1500 {
		return BucketMedieval
	}
	return BucketModern
}

// CoveragePriority describes why a planning pass selected its years.
type CoveragePriority string

const (
	PriorityMissing    CoveragePriority = "missing"
	PriorityLowQuality CoveragePriority = "low_quality"
	PriorityStrategic  CoveragePriority = "strategic"
)

// EraBalance counts selected years per era bucket.
type EraBalance struct {
	Ancient  int `json:"ancient"`
	Medieval int `json:"medieval"`
	Modern   int `json:"modern"`
}

// CoverageStrategy is the planner's decision of which years to generate
// content for next. Produced fresh on every planning call and never
// persisted; purely derived from current pool state.
type CoverageStrategy struct {
	TargetYears      []int            `json:"target_years"`
	Priority         CoveragePriority `json:"priority"`
	EraBalance       EraBalance       `json:"era_balance"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
}
