// Package model defines the core records passed between pipeline stages.
// Each record is created and owned by exactly one stage and passed by value;
// no stage holds a back-reference into another's state.
package model

// Era disambiguates year sign and prompt framing.
type Era string

const (
	EraBCE Era = "BCE"
	EraCE  Era = "CE"
)

// Valid reports whether the era is one of the two known values.
func (e Era) Valid() bool {
	return e == EraBCE || e == EraCE
}

// SignedYear collapses a (year, era) pair into a single signed integer: BCE
// years are negative, CE years positive. Year 0 does not exist; callers pass
// positive magnitudes.
func SignedYear(year int, era Era) int {
	if era == EraBCE {
		return -year
	}
	return year
}

// FromSigned splits a signed year back into its (year, era) pair.
func FromSigned(signed int) (int, Era) {
	if signed < 0 {
		return -signed, EraBCE
	}
	return signed, EraCE
}

// LeakFlags are deterministic indicators that a clue's text reveals the
// answer year too directly.
type LeakFlags struct {
	HasDigits       bool `json:"has_digits"`
	HasCenturyTerms bool `json:"has_century_terms"`
	HasSpelledYear  bool `json:"has_spelled_year"`
}

// Any reports whether any leak flag is set.
func (f LeakFlags) Any() bool {
	return f.HasDigits || f.HasCenturyTerms || f.HasSpelledYear
}

// CandidateEvent is one unverified historical-fact clue proposed by the
// Generator. Text fields are normalized (trimmed, whitespace-collapsed)
// before the event leaves the stage that created it.
type CandidateEvent struct {
	CanonicalTitle  string            `json:"canonical_title"`
	EventText       string            `json:"event_text"`
	Geo             string            `json:"geo"`
	DifficultyGuess int               `json:"difficulty_guess"` // 1..5
	Confidence      float64           `json:"confidence"`       // 0..1
	LeakFlags       LeakFlags         `json:"leak_flags"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CritiqueScores is the per-dimension score vector assigned to a candidate,
// each dimension in [0,1].
type CritiqueScores struct {
	Factual      float64 `json:"factual"`
	LeakRisk     float64 `json:"leak_risk"`
	Ambiguity    float64 `json:"ambiguity"`
	Guessability float64 `json:"guessability"`
	Diversity    float64 `json:"diversity"`
}

// CritiqueResult is the Critic's verdict for a single candidate. A failing
// candidate carries human-readable issues and actionable rewrite hints for
// the Reviser.
type CritiqueResult struct {
	Event        CandidateEvent `json:"event"`
	Passed       bool           `json:"passed"`
	Scores       CritiqueScores `json:"scores"`
	Issues       []string       `json:"issues,omitempty"`
	RewriteHints []string       `json:"rewrite_hints,omitempty"`
}

// QualityScores is the validator's independent score vector, each in [0,1].
type QualityScores struct {
	SemanticLeakage float64 `json:"semantic_leakage"`
	Factual         float64 `json:"factual"`
	Ambiguity       float64 `json:"ambiguity"`
	Guessability    float64 `json:"guessability"`
	MetadataQuality float64 `json:"metadata_quality"`
}
