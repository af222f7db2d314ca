package llm

import (
	"context"

	"github.com/timewise-games/content-cli/internal/model"
)

// Provider performs one completion call against a concrete backend. The
// client layers retry, fallback, caching metadata, and cost on top.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error)
}

// ProviderRequest is the normalized request handed to a provider.
type ProviderRequest struct {
	Model           string
	System          string
	User            string
	Temperature     *float64
	MaxOutputTokens int64
	ReasoningEffort string
	ReasoningBudget int64
	// ResponseFormat requests constrained decoding when non-nil.
	ResponseFormat *Schema
	// CacheSystem flags the system prompt for provider-side caching.
	CacheSystem bool
}

// ProviderResponse is the normalized provider reply.
type ProviderResponse struct {
	ID    string
	Model string
	Text  string
	Usage model.TokenUsage
	// CacheHit is true when the provider served the system prompt from its
	// prompt cache.
	CacheHit bool
}

// estimateTokens approximates a token count from text length, used when the
// provider omits usage fields. Four characters per token is the usual rough
// cut for English prose.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	n := int64(len(text)) / 4
	if n == 0 {
		n = 1
	}
	return n
}
