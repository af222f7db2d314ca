// Package quality scores candidate events independently of the LLM critic:
// semantic leakage against a knowledge base of known-leaky phrases, plus
// deterministic metadata and text heuristics.
package quality

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/kb"
	"github.com/timewise-games/content-cli/internal/model"
)

// RequiredMetadataFields is the fixed field set metadata quality is scored
// against.
var RequiredMetadataFields = []string{"difficulty", "category", "era", "fame_level", "tags"}

// Thresholds for the pass/fail decision.
const (
	maxLeakageScore    = 0.60
	minMetadataQuality = 0.60
	maxAmbiguityRisk   = 0.70

	// learnTextLimit caps the stored phrase length.
	learnTextLimit = 180
	// learnYearSpread is the half-width of the inferred year range.
	learnYearSpread = 5
)

// Validation is the validator's verdict for one event.
type Validation struct {
	Passed      bool
	Scores      model.QualityScores
	Reasoning   []string
	Suggestions []string
}

// Validator scores events against the leaky-phrase knowledge base. Safe for
// concurrent use: the phrase list and its persistence are guarded by a
// mutex, serializing learning-loop writes from parallel year pipelines.
type Validator struct {
	mu      sync.Mutex
	store   kb.Store
	phrases []kb.Phrase
}

// NewValidator loads the knowledge base and returns a ready validator.
func NewValidator(store kb.Store) (*Validator, error) {
	phrases, err := store.Load()
	if err != nil {
		return nil, eris.Wrap(err, "quality: load knowledge base")
	}
	return &Validator{store: store, phrases: phrases}, nil
}

// PhraseCount returns the current in-memory knowledge-base size.
func (v *Validator) PhraseCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.phrases)
}

// LeakageScore returns the maximum cosine similarity between the text's
// embedding and every phrase in the knowledge base, clamped to [0,1]. An
// empty base yields 0.
func (v *Validator) LeakageScore(text string) float64 {
	vec := Embed(text)

	v.mu.Lock()
	defer v.mu.Unlock()

	var maxSim float64
	for _, p := range v.phrases {
		if sim := Cosine(vec, p.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return clamp01(maxSim)
}

// MetadataQuality returns the fraction of required metadata fields present
// and non-empty on the event, clamped to [0,1].
func MetadataQuality(event model.CandidateEvent) float64 {
	if len(RequiredMetadataFields) == 0 {
		return 1
	}
	present := 0
	for _, f := range RequiredMetadataFields {
		if strings.TrimSpace(event.Metadata[f]) != "" {
			present++
		}
	}
	return clamp01(float64(present) / float64(len(RequiredMetadataFields)))
}

// ValidateEvent scores an event and decides pass/fail. Any dimension
// crossing its threshold fails the event.
func (v *Validator) ValidateEvent(event model.CandidateEvent) Validation {
	scores := model.QualityScores{
		SemanticLeakage: v.LeakageScore(event.EventText),
		Factual:         clamp01(event.Confidence),
		Ambiguity:       ambiguityRisk(event),
		Guessability:    guessability(event),
		MetadataQuality: MetadataQuality(event),
	}

	var reasoning, suggestions []string
	passed := true

	if event.LeakFlags.Any() {
		passed = false
		reasoning = append(reasoning, "leak flags set on candidate text")
		suggestions = append(suggestions, "remove explicit numerals, century terms, and spelled-out years")
	}
	if scores.SemanticLeakage > maxLeakageScore {
		passed = false
		reasoning = append(reasoning, fmt.Sprintf("semantic leakage %.2f exceeds %.2f", scores.SemanticLeakage, maxLeakageScore))
		suggestions = append(suggestions, "rephrase away from known year-revealing phrasing")
	}
	if scores.MetadataQuality < minMetadataQuality {
		passed = false
		reasoning = append(reasoning, fmt.Sprintf("metadata quality %.2f below %.2f", scores.MetadataQuality, minMetadataQuality))
		suggestions = append(suggestions, "fill in "+strings.Join(missingMetadata(event), ", "))
	}
	if scores.Ambiguity > maxAmbiguityRisk {
		passed = false
		reasoning = append(reasoning, fmt.Sprintf("ambiguity risk %.2f exceeds %.2f", scores.Ambiguity, maxAmbiguityRisk))
		suggestions = append(suggestions, "add a concrete actor or place to anchor the clue")
	}

	return Validation{Passed: passed, Scores: scores, Reasoning: reasoning, Suggestions: suggestions}
}

// LearnFromRejected appends a rejected event's text to the knowledge base
// and persists the whole list. Persistence failures are logged and
// swallowed: scoring keeps working even when durable storage is down,
// because learning is best-effort.
func (v *Validator) LearnFromRejected(event model.CandidateEvent, year int, era model.Era) {
	text := strings.ToLower(strings.TrimSpace(event.EventText))
	if text == "" {
		return
	}
	if len(text) > learnTextLimit {
		cut := learnTextLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	signed := model.SignedYear(year, era)
	phrase := kb.Phrase{
		Phrase:    text,
		YearRange: [2]int{signed - learnYearSpread, signed + learnYearSpread},
		Embedding: Embed(text),
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.phrases = append(v.phrases, phrase)

	if err := v.store.ReplaceAll(v.phrases); err != nil {
		zap.L().Error("knowledge base persist failed, continuing in memory",
			zap.Int("phrases", len(v.phrases)),
			zap.Error(err),
		)
	}
}

func ambiguityRisk(event model.CandidateEvent) float64 {
	risk := 0.1
	if len(strings.Fields(event.EventText)) < 5 {
		risk += 0.4
	}
	if strings.TrimSpace(event.Geo) == "" {
		risk += 0.2
	}
	if strings.TrimSpace(event.CanonicalTitle) == "" {
		risk += 0.2
	}
	return clamp01(risk)
}

func guessability(event model.CandidateEvent) float64 {
	// Difficulty 1 (famous) maps to highly guessable, 5 (obscure) to barely.
	d := event.DifficultyGuess
	if d < 1 || d > 5 {
		return 0.5
	}
	return clamp01(1.0 - float64(d-1)*0.2)
}

func missingMetadata(event model.CandidateEvent) []string {
	var missing []string
	for _, f := range RequiredMetadataFields {
		if strings.TrimSpace(event.Metadata[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
