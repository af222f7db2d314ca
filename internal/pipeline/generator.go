package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/pkg/llm"
)

// generatedEvent is the wire shape one proposed event arrives in.
type generatedEvent struct {
	CanonicalTitle  string   `json:"canonical_title"`
	EventText       string   `json:"event_text"`
	Geo             string   `json:"geo"`
	DifficultyGuess int      `json:"difficulty_guess"`
	Confidence      float64  `json:"confidence"`
	Category        string   `json:"category"`
	FameLevel       string   `json:"fame_level"`
	Tags            []string `json:"tags"`
}

type generatorPayload struct {
	Year   int              `json:"year"`
	Era    string           `json:"era"`
	Events []generatedEvent `json:"events"`
}

var eventItemSchema = llm.Property{
	Name: "events",
	Type: llm.TypeArray,
	Items: &llm.Property{
		Type: llm.TypeObject,
		Object: &llm.ObjectSchema{Properties: []llm.Property{
			{Name: "canonical_title", Type: llm.TypeString, Required: true},
			{Name: "event_text", Type: llm.TypeString, Required: true},
			{Name: "geo", Type: llm.TypeString, Required: true},
			{Name: "difficulty_guess", Type: llm.TypeInteger, Required: true, Minimum: f64(1), Maximum: f64(5)},
			{Name: "confidence", Type: llm.TypeNumber, Required: true, Minimum: f64(0), Maximum: f64(1)},
			{Name: "category", Type: llm.TypeString},
			{Name: "fame_level", Type: llm.TypeString},
			{Name: "tags", Type: llm.TypeArray, Items: &llm.Property{Type: llm.TypeString}},
		}},
	},
	Required: true,
}

var generatorSchema = &llm.Schema{
	Name: "candidate_events",
	Root: &llm.ObjectSchema{Properties: []llm.Property{
		{Name: "year", Type: llm.TypeInteger, Required: true},
		{Name: "era", Type: llm.TypeString, Required: true, Enum: []string{"BCE", "CE"}},
		eventItemSchema,
	}},
}

func f64(v float64) *float64 { return &v }

// Generator proposes candidate events for a single target year in one LLM
// call.
type Generator struct {
	client llm.Client
	opts   llm.Options
}

// NewGenerator builds a generator over the client. Options apply to every
// call; the cache namespace is fixed so repeated generator runs share the
// provider's prompt cache.
func NewGenerator(client llm.Client, opts llm.Options) *Generator {
	opts.Cacheable = true
	opts.CacheNamespace = "generator"
	return &Generator{client: client, opts: opts}
}

// Generate runs one generation call for (year, era) and returns sanitized
// candidates. A mismatched echoed year/era is logged, never fatal.
func (g *Generator) Generate(ctx context.Context, year int, era model.Era) (*model.GenerationOutcome, error) {
	if !era.Valid() {
		return nil, eris.Errorf("pipeline: invalid era %q", era)
	}

	payload, res, err := llm.GenerateAs[generatorPayload](ctx, g.client, llm.Request{
		SystemPrompt: generatorSystemPrompt,
		UserPrompt:   generatorUserPrompt(year, era),
		Schema:       generatorSchema,
		Options:      g.opts,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: generate year %d %s", year, era)
	}

	if payload.Year != year || model.Era(payload.Era) != era {
		zap.L().Warn("generator echoed different year/era than requested",
			zap.Int("requested_year", year),
			zap.String("requested_era", string(era)),
			zap.Int("echoed_year", payload.Year),
			zap.String("echoed_era", payload.Era),
		)
	}
	if n := len(payload.Events); n < minCandidates || n > maxCandidates {
		zap.L().Warn("generator returned out-of-range candidate count",
			zap.Int("year", year),
			zap.Int("count", n),
		)
	}

	candidates := make([]model.CandidateEvent, 0, len(payload.Events))
	for _, ev := range payload.Events {
		candidates = append(candidates, sanitizeCandidate(model.CandidateEvent{
			CanonicalTitle:  ev.CanonicalTitle,
			EventText:       ev.EventText,
			Geo:             ev.Geo,
			DifficultyGuess: ev.DifficultyGuess,
			Confidence:      ev.Confidence,
			Metadata: map[string]string{
				"difficulty": strconv.Itoa(ev.DifficultyGuess),
				"category":   ev.Category,
				"era":        string(era),
				"fame_level": ev.FameLevel,
				"tags":       strings.Join(ev.Tags, ","),
			},
		}))
	}

	return &model.GenerationOutcome{
		Year:       year,
		Era:        era,
		Candidates: candidates,
		LLM:        res.Stats(),
	}, nil
}
