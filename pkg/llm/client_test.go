package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/cost"
	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// stubProvider scripts provider responses per call.
type stubProvider struct {
	name     string
	calls    int
	requests []ProviderRequest
	fn       func(call int, req ProviderRequest) (*ProviderResponse, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	return s.fn(s.calls, req)
}

func okResponse(text string) *ProviderResponse {
	return &ProviderResponse{
		ID:    "req-123",
		Model: "primary-model",
		Text:  text,
		Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, primary, fallback Provider) Client {
	t.Helper()
	cfg := ClientConfig{
		Primary: ModelRef{Model: "primary-model", Provider: primary},
		Retry:   fastRetry(),
		Calculator: cost.NewCalculator(cost.Rates{
			Models: map[string]cost.ModelRate{
				"primary-model":  {Input: 1.00, Output: 10.00},
				"fallback-model": {Input: 2.00, Output: 20.00},
			},
		}),
	}
	if fallback != nil {
		cfg.Fallback = ModelRef{Model: "fallback-model", Provider: fallback}
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestGenerate_EmptySystemPromptRejected(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse("hi"), nil
	}}
	c := newTestClient(t, primary, nil)

	_, err := c.Generate(context.Background(), Request{SystemPrompt: "   ", UserPrompt: "x"})
	assert.ErrorIs(t, err, ErrEmptySystemPrompt)
	assert.Zero(t, primary.calls)
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse("hello"), nil
	}}
	c := newTestClient(t, primary, nil)

	res, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "user"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, "req-123", res.RequestID)
	assert.Empty(t, res.FallbackFrom)
	// 100 input at $1/MTok + 20 output at $10/MTok.
	assert.InDelta(t, 100.0/1e6+200.0/1e6, res.CostUSD, 1e-12)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(call int, _ ProviderRequest) (*ProviderResponse, error) {
		if call < 3 {
			return nil, resilience.NewProviderError(429, "rate limited")
		}
		return okResponse("eventually"), nil
	}}
	c := newTestClient(t, primary, nil)

	res, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "eventually", res.Text)
	assert.Equal(t, 3, primary.calls)
}

func TestGenerate_NoRetryOnPermanent4xx(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(400, "bad request")
	}}
	c := newTestClient(t, primary, nil)

	_, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
}

func TestGenerate_FallbackAfterPrimaryExhausted(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(503, "down")
	}}
	fallback := &stubProvider{name: "f", fn: func(_ int, req ProviderRequest) (*ProviderResponse, error) {
		return &ProviderResponse{ID: "fb-1", Model: req.Model, Text: "rescued"}, nil
	}}
	c := newTestClient(t, primary, fallback)

	res, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, 3, primary.calls, "primary retries exhausted first")
	assert.Equal(t, 1, fallback.calls, "fallback issued exactly once")
	assert.Equal(t, "rescued", res.Text)
	assert.Equal(t, "fallback-model", res.Model)
	assert.Equal(t, "primary-model", res.FallbackFrom)

	// The fallback received the same normalized request, only the model differs.
	require.Len(t, fallback.requests, 1)
	assert.Equal(t, "fallback-model", fallback.requests[0].Model)
	assert.Equal(t, primary.requests[0].System, fallback.requests[0].System)
	assert.Equal(t, primary.requests[0].User, fallback.requests[0].User)
}

func TestGenerate_Permanent4xxSkipsFallback(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(400, "bad request")
	}}
	fallback := &stubProvider{name: "f", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse("should never run"), nil
	}}
	c := newTestClient(t, primary, fallback)

	_, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls, "a caller error fails the same way on any model")

	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.StatusCode)
}

func TestGenerate_DoubleFailureRaisesPrimaryError(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(503, "primary down")
	}}
	fallback := &stubProvider{name: "f", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(401, "fallback unauthorized")
	}}
	c := newTestClient(t, primary, fallback)

	_, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.Error(t, err)

	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 503, pe.StatusCode, "root cause is the primary's error, not the fallback's")
}

func TestGenerate_OpenPrimaryCircuitSkipsToFallback(t *testing.T) {
	t.Parallel()

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return nil, resilience.NewProviderError(503, "down")
	}}
	fallback := &stubProvider{name: "f", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse("rescued"), nil
	}}

	breakers := resilience.NewModelBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	c, err := NewClient(ClientConfig{
		Primary:  ModelRef{Model: "primary-model", Provider: primary},
		Fallback: ModelRef{Model: "fallback-model", Provider: fallback},
		Retry:    fastRetry(),
		Breakers: breakers,
	})
	require.NoError(t, err)

	// First call trips the primary breaker.
	_, err = c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.NoError(t, err)
	primaryCallsAfterFirst := primary.calls

	// Second call must not touch the primary provider at all.
	res, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, primaryCallsAfterFirst, primary.calls)
	assert.Equal(t, "primary-model", res.FallbackFrom)
}

func TestGenerate_SchemaValidatedRoundTrip(t *testing.T) {
	t.Parallel()

	schema := &Schema{
		Name: "greeting",
		Root: &ObjectSchema{Properties: []Property{
			{Name: "word", Type: TypeString, Required: true},
			{Name: "count", Type: TypeInteger, Required: true},
		}},
	}

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse("```json\n{\"word\": \"hi\", \"count\": 2}\n```"), nil
	}}
	c := newTestClient(t, primary, nil)

	type greeting struct {
		Word  string `json:"word"`
		Count int    `json:"count"`
	}
	got, res, err := GenerateAs[greeting](context.Background(), c, Request{
		SystemPrompt: "sys", UserPrompt: "u", Schema: schema,
	})
	require.NoError(t, err)
	assert.Equal(t, greeting{Word: "hi", Count: 2}, got)
	assert.JSONEq(t, `{"word":"hi","count":2}`, string(res.JSON))

	// The provider was asked for constrained decoding.
	require.Len(t, primary.requests, 1)
	assert.Equal(t, schema, primary.requests[0].ResponseFormat)
}

func TestGenerate_SchemaViolationSurfaced(t *testing.T) {
	t.Parallel()

	schema := &Schema{
		Name: "greeting",
		Root: &ObjectSchema{Properties: []Property{
			{Name: "word", Type: TypeString, Required: true},
		}},
	}

	primary := &stubProvider{name: "p", fn: func(int, ProviderRequest) (*ProviderResponse, error) {
		return okResponse(`{"other": 1}`), nil
	}}
	c := newTestClient(t, primary, nil)

	_, err := c.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u", Schema: schema})
	require.Error(t, err)

	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestCacheKey_Deterministic(t *testing.T) {
	t.Parallel()

	k1 := CacheKey("generator", "You write clues.")
	k2 := CacheKey("generator", "You write clues.")
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, CacheKey("critic", "You write clues."))
	assert.NotEqual(t, k1, CacheKey("generator", "You write clues!"))
	assert.True(t, len(k1) > len("generator:"))
	assert.Contains(t, k1, "generator:")
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Here you go: {\"a\":1} Enjoy!", `{"a":1}`},
		{"array payload", "result: [1,2,3] done", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}
