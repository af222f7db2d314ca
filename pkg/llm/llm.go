// Package llm is the single entry point to the text-generation provider. It
// hides the provider wire protocol, token accounting, prompt caching,
// retry/backoff, and model fallback behind one Generate call.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/model"
)

// Client generates text (or schema-constrained JSON) from prompts.
type Client interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Request describes one generation call. SystemPrompt must be non-empty.
// When Schema is set, the provider is asked for constrained decoding and the
// result payload is re-validated against the same schema before it is
// returned.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Schema       *Schema
	Options      Options
}

// Options tune a single request.
type Options struct {
	// Model overrides the client's primary model when non-empty.
	Model string

	Temperature     *float64
	MaxOutputTokens int64

	// ReasoningEffort and ReasoningBudget configure provider-internal
	// deliberation ("low"/"medium"/"high"; budget in tokens).
	ReasoningEffort string
	ReasoningBudget int64

	// Cacheable flags the system prompt for provider-side prompt caching.
	// CacheNamespace distinguishes otherwise-identical prompts across
	// pipeline stages.
	Cacheable      bool
	CacheNamespace string
}

// Result is the outcome of one generation call. Cache hits and fallback
// substitutions are surfaced here, never silently hidden.
type Result struct {
	Text string
	// JSON holds the schema-validated payload when the request carried a
	// schema.
	JSON json.RawMessage

	RequestID    string
	Model        string
	Usage        model.TokenUsage
	CostUSD      float64
	CacheHit     bool
	FallbackFrom string
}

// Stats returns the accounting record attached to per-stage outcomes.
func (r *Result) Stats() model.CallStats {
	return model.CallStats{
		RequestID:    r.RequestID,
		Model:        r.Model,
		Usage:        r.Usage,
		CostUSD:      r.CostUSD,
		CacheHit:     r.CacheHit,
		FallbackFrom: r.FallbackFrom,
	}
}

// CacheKey derives the deterministic cache key for a system prompt:
// namespace:hash(systemPrompt). Identical inputs produce identical keys.
func CacheKey(namespace, systemPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt))
	return namespace + ":" + hex.EncodeToString(sum[:16])
}

// GenerateAs issues the request and unmarshals the schema-validated JSON
// payload into T. The request must carry a schema.
func GenerateAs[T any](ctx context.Context, client Client, req Request) (T, *Result, error) {
	var out T
	if req.Schema == nil {
		return out, nil, eris.New("llm: GenerateAs requires a schema")
	}

	res, err := client.Generate(ctx, req)
	if err != nil {
		return out, nil, err
	}

	if err := json.Unmarshal(res.JSON, &out); err != nil {
		return out, res, eris.Wrap(err, "llm: unmarshal structured result")
	}
	return out, res, nil
}
