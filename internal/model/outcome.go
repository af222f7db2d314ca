package model

import "time"

// TokenUsage tracks token consumption for one LLM call. Reasoning tokens are
// tracked separately because they are priced independently from output
// tokens and must never be folded into ordinary output-token cost.
type TokenUsage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens"`
	CacheReadTokens int64 `json:"cache_read_tokens"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// CallStats records provenance and accounting for a single LLM call.
// FallbackFrom is set when the fallback model served the request, so callers
// can audit silent substitutions.
type CallStats struct {
	RequestID    string     `json:"request_id"`
	Model        string     `json:"model"`
	Usage        TokenUsage `json:"usage"`
	CostUSD      float64    `json:"cost_usd"`
	CacheHit     bool       `json:"cache_hit"`
	FallbackFrom string     `json:"fallback_from,omitempty"`
}

// GenerationOutcome is the per-year result of one pipeline stage. Immutable
// once produced.
type GenerationOutcome struct {
	Year       int              `json:"year"`
	Era        Era              `json:"era"`
	Candidates []CandidateEvent `json:"candidates"`
	LLM        CallStats        `json:"llm"`
}

// BatchResult aggregates a full batch run. Per-year failures are isolated
// and recorded here; a batch run never fails as a whole for partial failures.
type BatchResult struct {
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	FailedYears   []int         `json:"failed_years,omitempty"`
	TotalCostUSD  float64       `json:"total_cost_usd"`
	TotalDuration time.Duration `json:"total_duration"`
}
