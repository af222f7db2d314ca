package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/pkg/llm"
)

var reviserSchema = &llm.Schema{
	Name: "revised_events",
	Root: &llm.ObjectSchema{Properties: []llm.Property{eventItemSchema}},
}

type reviserPayload struct {
	Events []generatedEvent `json:"events"`
}

// Reviser rewrites failing candidates in one LLM call. It never re-runs the
// critic; the orchestrator decides whether revised candidates are
// re-validated or accepted as-is.
type Reviser struct {
	client llm.Client
	opts   llm.Options
}

func NewReviser(client llm.Client, opts llm.Options) *Reviser {
	opts.Cacheable = true
	opts.CacheNamespace = "reviser"
	return &Reviser{client: client, opts: opts}
}

// Revise rewrites the failed critiques. With zero failures it issues no LLM
// call and returns an empty outcome with an empty request id.
func (r *Reviser) Revise(ctx context.Context, year int, era model.Era, failures []model.CritiqueResult) (*model.GenerationOutcome, error) {
	outcome := &model.GenerationOutcome{Year: year, Era: era}
	if len(failures) == 0 {
		return outcome, nil
	}

	payload, res, err := llm.GenerateAs[reviserPayload](ctx, r.client, llm.Request{
		SystemPrompt: reviserSystemPrompt,
		UserPrompt:   reviserUserPrompt(year, era, failures),
		Schema:       reviserSchema,
		Options:      r.opts,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: revise year %d %s", year, era)
	}

	outcome.Candidates = make([]model.CandidateEvent, 0, len(payload.Events))
	for _, ev := range payload.Events {
		outcome.Candidates = append(outcome.Candidates, sanitizeCandidate(model.CandidateEvent{
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
	outcome.LLM = res.Stats()
	return outcome, nil
}
