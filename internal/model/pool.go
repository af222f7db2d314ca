package model

import "time"

// PoolEvent is a validated candidate persisted to the event pool, awaiting
// selection into a puzzle.
type PoolEvent struct {
	ID             string            `json:"id"`
	Year           int               `json:"year"`
	Era            Era               `json:"era"`
	CanonicalTitle string            `json:"canonical_title"`
	EventText      string            `json:"event_text"`
	Geo            string            `json:"geo"`
	Difficulty     int               `json:"difficulty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Flagged        bool              `json:"flagged"`
	ConsumedBy     string            `json:"consumed_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// YearPoolStat summarizes the pool for one (year, era) pair.
type YearPoolStat struct {
	Year    int `json:"year"`
	Unused  int `json:"unused"`
	Flagged int `json:"flagged"`
	Total   int `json:"total"`

	Era Era `json:"era"`
}

// DemandStat counts how often a year has been selected into puzzles.
type DemandStat struct {
	Year       int `json:"year"`
	Selections int `json:"selections"`

	Era Era `json:"era"`
}
