package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewise-games/content-cli/internal/resilience"
)

func newCompatServer(t *testing.T, status int, body string) (*httptest.Server, *HTTPProvider) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, NewHTTPProvider("test-key", WithBaseURL(srv.URL))
}

func TestHTTPProvider_ChatCompletionShape(t *testing.T) {
	t.Parallel()

	_, p := newCompatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"model": "gpt-5-mini",
		"choices": [{"message": {"content": "twelve clues"}}],
		"usage": {
			"prompt_tokens": 200,
			"completion_tokens": 50,
			"completion_tokens_details": {"reasoning_tokens": 30},
			"prompt_tokens_details": {"cached_tokens": 150}
		}
	}`)

	resp, err := p.Complete(context.Background(), ProviderRequest{
		Model: "gpt-5-mini", System: "sys", User: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "twelve clues", resp.Text)
	assert.Equal(t, int64(200), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(30), resp.Usage.ReasoningTokens)
	assert.Equal(t, int64(150), resp.Usage.CacheReadTokens)
	assert.True(t, resp.CacheHit)
}

func TestHTTPProvider_StructuredOutputShape(t *testing.T) {
	t.Parallel()

	_, p := newCompatServer(t, http.StatusOK, `{
		"id": "resp-2",
		"model": "gpt-5",
		"output": [
			{"type": "reasoning", "content": []},
			{"type": "message", "content": [{"type": "output_text", "text": "from output blocks"}]}
		],
		"usage": {"input_tokens": 80, "output_tokens": 10, "reasoning_tokens": 500}
	}`)

	resp, err := p.Complete(context.Background(), ProviderRequest{
		Model: "gpt-5", System: "sys", User: "user",
	})
	require.NoError(t, err)
	assert.Equal(t, "from output blocks", resp.Text)
	assert.Equal(t, int64(80), resp.Usage.InputTokens)
	assert.Equal(t, int64(10), resp.Usage.OutputTokens)
	assert.Equal(t, int64(500), resp.Usage.ReasoningTokens)
	assert.False(t, resp.CacheHit)
}

func TestHTTPProvider_UsageEstimationFallback(t *testing.T) {
	t.Parallel()

	_, p := newCompatServer(t, http.StatusOK, `{
		"id": "resp-3",
		"choices": [{"message": {"content": "some generated answer text"}}]
	}`)

	resp, err := p.Complete(context.Background(), ProviderRequest{
		Model: "gpt-5-mini", System: "a system prompt", User: "a user prompt",
	})
	require.NoError(t, err)
	assert.Positive(t, resp.Usage.InputTokens, "input estimated from prompt length")
	assert.Positive(t, resp.Usage.OutputTokens, "output estimated from response length")
}

func TestHTTPProvider_NeitherShapePresent(t *testing.T) {
	t.Parallel()

	_, p := newCompatServer(t, http.StatusOK, `{"id": "resp-4"}`)

	_, err := p.Complete(context.Background(), ProviderRequest{Model: "m", System: "s", User: "u"})
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestHTTPProvider_ErrorStatusBecomesProviderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, p := newCompatServer(t, tt.status, `{"error": {"message": "nope"}}`)

			_, err := p.Complete(context.Background(), ProviderRequest{Model: "m", System: "s", User: "u"})
			require.Error(t, err)

			var pe *resilience.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(err))
		})
	}
}

func TestHTTPProvider_SendsResponseFormatAndReasoning(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"content":"{}"}}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider("k", WithBaseURL(srv.URL))
	schema := &Schema{Name: "thing", Root: &ObjectSchema{Properties: []Property{
		{Name: "a", Type: TypeString, Required: true},
	}}}

	_, err := p.Complete(context.Background(), ProviderRequest{
		Model:           "gpt-5",
		System:          "s",
		User:            "u",
		ReasoningEffort: "high",
		ReasoningBudget: 2048,
		ResponseFormat:  schema,
	})
	require.NoError(t, err)

	reasoning := captured["reasoning"].(map[string]any)
	assert.Equal(t, "high", reasoning["effort"])
	assert.Equal(t, 2048.0, reasoning["budget_tokens"])

	rf := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, "thing", js["name"])
	assert.Equal(t, true, js["strict"])
}
