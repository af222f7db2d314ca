package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/quality"
	"github.com/timewise-games/content-cli/pkg/llm"
)

// Blend weights and pass/fail thresholds for the combined LLM + validator
// judgment.
const (
	llmWeight       = 0.70
	validatorWeight = 0.30

	minFactualScore  = 0.50
	maxLeakRisk      = 0.60
	maxAmbiguity     = 0.70
	minMetadataScore = 0.60

	// disagreementThreshold flags LLM/validator splits worth offline review.
	disagreementThreshold = 0.40
)

// EventValidator is the deterministic scorer the critic blends with the
// LLM's judgment.
type EventValidator interface {
	ValidateEvent(event model.CandidateEvent) quality.Validation
}

type critiqueWireScores struct {
	Factual      float64 `json:"factual"`
	LeakRisk     float64 `json:"leak_risk"`
	Ambiguity    float64 `json:"ambiguity"`
	Guessability float64 `json:"guessability"`
	Diversity    float64 `json:"diversity"`
}

type critiqueWireItem struct {
	Index        int                `json:"index"`
	Scores       critiqueWireScores `json:"scores"`
	Issues       []string           `json:"issues"`
	RewriteHints []string           `json:"rewrite_hints"`
}

type critiquePayload struct {
	Critiques []critiqueWireItem `json:"critiques"`
}

var scoreProp = func(name string) llm.Property {
	return llm.Property{Name: name, Type: llm.TypeNumber, Required: true, Minimum: f64(0), Maximum: f64(1)}
}

var criticSchema = &llm.Schema{
	Name: "critiques",
	Root: &llm.ObjectSchema{Properties: []llm.Property{
		{
			Name:     "critiques",
			Type:     llm.TypeArray,
			Required: true,
			Items: &llm.Property{
				Type: llm.TypeObject,
				Object: &llm.ObjectSchema{Properties: []llm.Property{
					{Name: "index", Type: llm.TypeInteger, Required: true, Minimum: f64(0)},
					{Name: "scores", Type: llm.TypeObject, Required: true, Object: &llm.ObjectSchema{Properties: []llm.Property{
						scoreProp("factual"),
						scoreProp("leak_risk"),
						scoreProp("ambiguity"),
						scoreProp("guessability"),
						scoreProp("diversity"),
					}}},
					{Name: "issues", Type: llm.TypeArray, Items: &llm.Property{Type: llm.TypeString}},
					{Name: "rewrite_hints", Type: llm.TypeArray, Items: &llm.Property{Type: llm.TypeString}},
				}},
			},
		},
	}},
}

// Critic scores a candidate list with one LLM call blended with the
// deterministic validator, 70% LLM-judged and 30% validator-judged per
// dimension. Diversity has no validator counterpart and stays LLM-only.
type Critic struct {
	client    llm.Client
	validator EventValidator
	opts      llm.Options
}

func NewCritic(client llm.Client, validator EventValidator, opts llm.Options) *Critic {
	opts.Cacheable = true
	opts.CacheNamespace = "critic"
	return &Critic{client: client, validator: validator, opts: opts}
}

// Critique scores every candidate and decides pass/fail. A candidate fails
// when any blended dimension crosses its threshold.
func (c *Critic) Critique(ctx context.Context, year int, era model.Era, candidates []model.CandidateEvent) ([]model.CritiqueResult, model.CallStats, error) {
	if len(candidates) == 0 {
		return nil, model.CallStats{}, nil
	}

	payload, res, err := llm.GenerateAs[critiquePayload](ctx, c.client, llm.Request{
		SystemPrompt: criticSystemPrompt,
		UserPrompt:   criticUserPrompt(year, era, candidates),
		Schema:       criticSchema,
		Options:      c.opts,
	})
	if err != nil {
		return nil, model.CallStats{}, eris.Wrapf(err, "pipeline: critique year %d %s", year, era)
	}

	byIndex := make(map[int]critiqueWireItem, len(payload.Critiques))
	for _, item := range payload.Critiques {
		byIndex[item.Index] = item
	}

	results := make([]model.CritiqueResult, 0, len(candidates))
	for i, cand := range candidates {
		item, scored := byIndex[i]
		if !scored {
			zap.L().Warn("critic skipped a candidate, treating as failed",
				zap.Int("year", year),
				zap.Int("index", i),
			)
			item = critiqueWireItem{
				Scores: critiqueWireScores{LeakRisk: 1, Ambiguity: 1},
				Issues: []string{"not scored by reviewer"},
			}
		}
		results = append(results, c.judge(year, cand, item))
	}
	return results, res.Stats(), nil
}

func (c *Critic) judge(year int, cand model.CandidateEvent, item critiqueWireItem) model.CritiqueResult {
	v := c.validator.ValidateEvent(cand)

	blended := model.CritiqueScores{
		Factual:      llmWeight*item.Scores.Factual + validatorWeight*v.Scores.Factual,
		LeakRisk:     llmWeight*item.Scores.LeakRisk + validatorWeight*v.Scores.SemanticLeakage,
		Ambiguity:    llmWeight*item.Scores.Ambiguity + validatorWeight*v.Scores.Ambiguity,
		Guessability: llmWeight*item.Scores.Guessability + validatorWeight*v.Scores.Guessability,
		Diversity:    item.Scores.Diversity,
	}

	logDisagreements(year, cand, item.Scores, v.Scores)

	issues := append([]string{}, item.Issues...)
	hints := append([]string{}, item.RewriteHints...)

	passed := true
	fail := func(issue, hint string) {
		passed = false
		issues = append(issues, issue)
		if hint != "" {
			hints = append(hints, hint)
		}
	}

	if cand.LeakFlags.Any() {
		fail("text carries explicit year leakage", "remove numerals, century terms, and spelled-out years")
	}
	if blended.LeakRisk > maxLeakRisk {
		fail("leak risk above threshold", "rephrase away from year-revealing wording")
	}
	if blended.Factual < minFactualScore {
		fail("factual confidence below threshold", "replace with a better-attested event for this year")
	}
	if blended.Ambiguity > maxAmbiguity {
		fail("clue too ambiguous", "anchor the clue with a named actor or place")
	}
	if v.Scores.MetadataQuality < minMetadataScore {
		fail("metadata incomplete", "supply difficulty, category, era, fame level, and tags")
	}

	return model.CritiqueResult{
		Event:        cand,
		Passed:       passed,
		Scores:       blended,
		Issues:       issues,
		RewriteHints: hints,
	}
}

// logDisagreements records LLM/validator splits for offline analysis. They
// never block the pipeline.
func logDisagreements(year int, cand model.CandidateEvent, l critiqueWireScores, v model.QualityScores) {
	pairs := []struct {
		dim      string
		llm, val float64
	}{
		{"factual", l.Factual, v.Factual},
		{"leak", l.LeakRisk, v.SemanticLeakage},
		{"ambiguity", l.Ambiguity, v.Ambiguity},
		{"guessability", l.Guessability, v.Guessability},
	}
	for _, p := range pairs {
		diff := p.llm - p.val
		if diff < 0 {
			diff = -diff
		}
		if diff > disagreementThreshold {
			zap.L().Warn("critic and validator disagree",
				zap.Int("year", year),
				zap.String("title", cand.CanonicalTitle),
				zap.String("dimension", p.dim),
				zap.Float64("llm", p.llm),
				zap.Float64("validator", p.val),
			)
		}
	}
}
