// Package kb holds the leaky-phrase knowledge base the semantic-leakage
// detector scores against. The base is append-only: seeded once, grown only
// by the learning feedback loop, never edited or deleted.
package kb

// Phrase is one known-leaky phrase with its embedding and the year range it
// gives away.
type Phrase struct {
	Phrase    string    `json:"phrase"`
	YearRange [2]int    `json:"yearRange"`
	Embedding []float32 `json:"embedding"`
}

// Store abstracts phrase persistence so the atomic-temp-file strategy is one
// implementation rather than baked into the validator.
type Store interface {
	// Load reads the full phrase list. A missing backing file yields an
	// empty list, not an error.
	Load() ([]Phrase, error)
	// ReplaceAll atomically replaces the stored list; readers never observe
	// a partially written base.
	ReplaceAll(phrases []Phrase) error
}
