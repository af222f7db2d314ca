// Package cost computes USD cost for LLM token usage from a per-model
// price table.
package cost

import "github.com/timewise-games/content-cli/internal/model"

// Rates holds per-model pricing configuration.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
// Reasoning tokens carry their own rate: several providers bill internal
// deliberation tokens at a different (sometimes zero) price, so they are
// never folded into the output rate.
type ModelRate struct {
	Input        float64 `yaml:"input" mapstructure:"input"`
	Output       float64 `yaml:"output" mapstructure:"output"`
	Reasoning    float64 `yaml:"reasoning" mapstructure:"reasoning"`
	CacheReadMul float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for LLM usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call computes the cost of one LLM call. Cache-read tokens are billed at
// the input rate scaled by the model's cache-read multiplier. Returns 0 for
// unknown models.
func (c *Calculator) Call(modelID string, usage model.TokenUsage) float64 {
	rate, ok := c.rates.Models[modelID]
	if !ok {
		return 0
	}

	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	reasonCost := (float64(usage.ReasoningTokens) / 1e6) * rate.Reasoning
	cacheCost := (float64(usage.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + reasonCost + cacheCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, Reasoning: 4.00, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, Reasoning: 15.00, CacheReadMul: 0.1,
			},
			"gpt-5-mini": {
				Input: 0.25, Output: 2.00, Reasoning: 0, CacheReadMul: 0.1,
			},
			"gpt-5": {
				Input: 1.25, Output: 10.00, Reasoning: 0, CacheReadMul: 0.1,
			},
		},
	}
}
