package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/cost"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// ErrEmptySystemPrompt is returned for requests missing a system prompt.
var ErrEmptySystemPrompt = eris.New("llm: system prompt must not be empty")

// ModelRef binds a model ID to the provider that serves it.
type ModelRef struct {
	Model    string
	Provider Provider
}

// ClientConfig assembles a generation client. The caller owns construction
// and passes the client down; there is no process-wide cached instance.
type ClientConfig struct {
	Primary  ModelRef
	Fallback ModelRef // optional; zero value disables fallback

	Retry      resilience.RetryConfig
	Calculator *cost.Calculator
	// Breakers short-circuits models that are failing consistently; an open
	// primary circuit skips straight to the fallback model. Optional.
	Breakers *resilience.ModelBreakers
}

type client struct {
	cfg ClientConfig
}

// NewClient builds a Client from explicit configuration.
func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.Primary.Model == "" || cfg.Primary.Provider == nil {
		return nil, eris.New("llm: primary model and provider are required")
	}
	if cfg.Calculator == nil {
		cfg.Calculator = cost.NewCalculator(cost.DefaultRates())
	}
	return &client{cfg: cfg}, nil
}

// Generate issues one completion with retry, fallback, and (when a schema is
// present) post-decode re-validation. When both the primary and fallback
// models fail, the primary's error is returned so root cause is preserved.
func (c *client) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return nil, ErrEmptySystemPrompt
	}

	preq := c.normalize(req)
	start := time.Now()

	primaryModel := preq.Model
	resp, primaryErr := c.callModel(ctx, primaryModel, c.cfg.Primary.Provider, preq, req)

	fallbackFrom := ""
	if primaryErr != nil {
		if c.cfg.Fallback.Model == "" || c.cfg.Fallback.Provider == nil {
			return nil, primaryErr
		}
		// Fallback substitutes only after transient retries are exhausted or
		// when the primary circuit is open. A permanent caller error (4xx)
		// would fail identically on the fallback model.
		if !resilience.IsRetryable(primaryErr) && !errors.Is(primaryErr, resilience.ErrCircuitOpen) {
			return nil, primaryErr
		}

		freq := preq
		freq.Model = c.cfg.Fallback.Model
		zap.L().Warn("primary model failed, substituting fallback",
			zap.String("primary", primaryModel),
			zap.String("fallback", freq.Model),
			zap.Error(primaryErr),
		)

		// One fallback attempt; on failure the primary error is raised.
		fresp, fallbackErr := c.callOnce(ctx, freq.Model, c.cfg.Fallback.Provider, freq)
		if fallbackErr != nil {
			zap.L().Error("fallback model also failed",
				zap.String("fallback", freq.Model),
				zap.Error(fallbackErr),
			)
			return nil, primaryErr
		}
		resp = fresp
		fallbackFrom = primaryModel
	}

	result := &Result{
		Text:         resp.Text,
		RequestID:    resp.ID,
		Model:        resp.Model,
		Usage:        resp.Usage,
		CacheHit:     resp.CacheHit,
		FallbackFrom: fallbackFrom,
	}
	if result.RequestID == "" {
		result.RequestID = uuid.New().String()
	}
	if result.Model == "" {
		result.Model = preq.Model
		if fallbackFrom != "" {
			result.Model = c.cfg.Fallback.Model
		}
	}
	result.CostUSD = c.cfg.Calculator.Call(result.Model, result.Usage)

	if req.Schema != nil {
		payload := json.RawMessage(cleanJSON(resp.Text))
		if err := req.Schema.Validate(payload); err != nil {
			return nil, eris.Wrapf(err, "llm: %s response", req.Schema.Name)
		}
		result.JSON = payload
	}

	zap.L().Debug("generation complete",
		zap.String("request_id", result.RequestID),
		zap.String("model", result.Model),
		zap.String("cache_key", CacheKey(req.Options.CacheNamespace, req.SystemPrompt)),
		zap.Bool("cache_hit", result.CacheHit),
		zap.String("fallback_from", fallbackFrom),
		zap.Int64("input_tokens", result.Usage.InputTokens),
		zap.Int64("output_tokens", result.Usage.OutputTokens),
		zap.Int64("reasoning_tokens", result.Usage.ReasoningTokens),
		zap.Float64("cost_usd", result.CostUSD),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// normalize maps a Request onto the provider wire request. The same
// normalized request is reused verbatim for the fallback model.
func (c *client) normalize(req Request) ProviderRequest {
	modelID := req.Options.Model
	if modelID == "" {
		modelID = c.cfg.Primary.Model
	}
	return ProviderRequest{
		Model:           modelID,
		System:          strings.TrimSpace(req.SystemPrompt),
		User:            strings.TrimSpace(req.UserPrompt),
		Temperature:     req.Options.Temperature,
		MaxOutputTokens: req.Options.MaxOutputTokens,
		ReasoningEffort: req.Options.ReasoningEffort,
		ReasoningBudget: req.Options.ReasoningBudget,
		ResponseFormat:  req.Schema,
		CacheSystem:     req.Options.Cacheable,
	}
}

// callModel runs the retry loop for one model, consulting its circuit
// breaker before and after.
func (c *client) callModel(ctx context.Context, modelID string, provider Provider, preq ProviderRequest, req Request) (*ProviderResponse, error) {
	var breaker *resilience.CircuitBreaker
	if c.cfg.Breakers != nil {
		breaker = c.cfg.Breakers.Get(modelID)
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	retryCfg := c.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(modelID, req.Options.CacheNamespace)
	}

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*ProviderResponse, error) {
		return provider.Complete(ctx, preq)
	})
	if breaker != nil {
		breaker.Record(err)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "llm: generate with %s", modelID)
	}
	return resp, nil
}

// callOnce issues a single un-retried attempt, used for the fallback model.
func (c *client) callOnce(ctx context.Context, modelID string, provider Provider, preq ProviderRequest) (*ProviderResponse, error) {
	var breaker *resilience.CircuitBreaker
	if c.cfg.Breakers != nil {
		breaker = c.cfg.Breakers.Get(modelID)
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	resp, err := provider.Complete(ctx, preq)
	if breaker != nil {
		breaker.Record(err)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "llm: generate with %s", modelID)
	}
	return resp, nil
}

// cleanJSON strips markdown code fences and surrounding prose, keeping the
// outermost JSON object or array.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.IndexAny(text, "{[")
	if start >= 0 {
		var end int
		if text[start] == '{' {
			end = strings.LastIndex(text, "}")
		} else {
			end = strings.LastIndex(text, "]")
		}
		if end > start {
			text = text[start : end+1]
		}
	}

	return strings.TrimSpace(text)
}
