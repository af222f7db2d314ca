package pipeline

import (
	"context"
	"time"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/monitoring"
	"github.com/timewise-games/content-cli/internal/quality"
)

// QualityChecker is the validator surface the runner needs: independent
// scoring for revised candidates plus the rejection learning loop.
type QualityChecker interface {
	ValidateEvent(event model.CandidateEvent) quality.Validation
	LearnFromRejected(event model.CandidateEvent, year int, era model.Era)
}

// YearResult is the end-to-end outcome of one year's pipeline run.
type YearResult struct {
	Year     int
	Era      model.Era
	Accepted []model.CandidateEvent
	Rejected []model.CritiqueResult
	Usage    model.TokenUsage
	CostUSD  float64
}

// Runner drives one year through Generator, Critic, and Reviser, emitting a
// stage record to the sink after each stage. Revised candidates are
// re-scored with the deterministic validator only; no second LLM critique.
type Runner struct {
	generator *Generator
	critic    *Critic
	reviser   *Reviser
	checker   QualityChecker
	sink      monitoring.Sink
}

func NewRunner(g *Generator, c *Critic, r *Reviser, checker QualityChecker, sink monitoring.Sink) *Runner {
	if sink == nil {
		sink = monitoring.NopSink{}
	}
	return &Runner{generator: g, critic: c, reviser: r, checker: checker, sink: sink}
}

// RunYear executes the full pipeline for (year, era).
func (r *Runner) RunYear(ctx context.Context, year int, era model.Era) (*YearResult, error) {
	result := &YearResult{Year: year, Era: era}

	gen, err := r.stage(ctx, "generator", year, era, result, func(ctx context.Context) (*model.GenerationOutcome, error) {
		return r.generator.Generate(ctx, year, era)
	})
	if err != nil {
		return nil, err
	}

	critiques, err := r.critique(ctx, year, era, result, gen.Candidates)
	if err != nil {
		return nil, err
	}

	var failures []model.CritiqueResult
	for _, c := range critiques {
		if c.Passed {
			result.Accepted = append(result.Accepted, c.Event)
		} else {
			failures = append(failures, c)
		}
	}

	revised, err := r.stage(ctx, "reviser", year, era, result, func(ctx context.Context) (*model.GenerationOutcome, error) {
		return r.reviser.Revise(ctx, year, era, failures)
	})
	if err != nil {
		return nil, err
	}

	// Revised candidates get one deterministic re-check; those still failing
	// are final rejects and feed the leakage learning loop.
	for _, cand := range revised.Candidates {
		v := r.checker.ValidateEvent(cand)
		if v.Passed {
			result.Accepted = append(result.Accepted, cand)
			continue
		}
		result.Rejected = append(result.Rejected, model.CritiqueResult{
			Event:  cand,
			Passed: false,
			Issues: v.Reasoning,
		})
		if cand.LeakFlags.Any() || v.Scores.SemanticLeakage > maxLeakRisk {
			r.checker.LearnFromRejected(cand, year, era)
		}
	}

	return result, nil
}

// stage runs one generation-shaped stage, accumulates accounting, and emits
// its record.
func (r *Runner) stage(ctx context.Context, name string, year int, era model.Era, result *YearResult, fn func(context.Context) (*model.GenerationOutcome, error)) (*model.GenerationOutcome, error) {
	start := time.Now()
	out, err := fn(ctx)

	rec := monitoring.StageRecord{
		Stage:    name,
		Year:     year,
		Era:      era,
		Duration: time.Since(start),
		Err:      err,
	}
	if out != nil {
		rec.RequestID = out.LLM.RequestID
		rec.Usage = out.LLM.Usage
		rec.CostUSD = out.LLM.CostUSD
		result.Usage.Add(out.LLM.Usage)
		result.CostUSD += out.LLM.CostUSD
	}
	r.sink.Record(rec)
	return out, err
}

func (r *Runner) critique(ctx context.Context, year int, era model.Era, result *YearResult, candidates []model.CandidateEvent) ([]model.CritiqueResult, error) {
	start := time.Now()
	critiques, stats, err := r.critic.Critique(ctx, year, era, candidates)

	result.Usage.Add(stats.Usage)
	result.CostUSD += stats.CostUSD
	r.sink.Record(monitoring.StageRecord{
		Stage:     "critic",
		RequestID: stats.RequestID,
		Year:      year,
		Era:       era,
		Usage:     stats.Usage,
		CostUSD:   stats.CostUSD,
		Duration:  time.Since(start),
		Err:       err,
	})
	return critiques, err
}
