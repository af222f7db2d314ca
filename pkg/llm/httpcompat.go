package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

const defaultCompatBaseURL = "https://api.openai.com/v1"

// HTTPProvider speaks the OpenAI-compatible chat-completions wire protocol.
// Responses may arrive either as the classic chat-completion shape
// (choices[0].message.content) or as structured output[] blocks; both are
// accepted. Usage fields missing from the reply fall back to length-based
// estimation.
type HTTPProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// HTTPOption configures the provider.
type HTTPOption func(*HTTPProvider)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) HTTPOption {
	return func(p *HTTPProvider) {
		p.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.http = hc
	}
}

// NewHTTPProvider creates a provider for an OpenAI-compatible endpoint.
func NewHTTPProvider(apiKey string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		apiKey:  apiKey,
		baseURL: defaultCompatBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name identifies the provider in logs and config.
func (p *HTTPProvider) Name() string { return "httpcompat" }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireReasoning struct {
	Effort       string `json:"effort,omitempty"`
	BudgetTokens int64  `json:"budget_tokens,omitempty"`
}

type wireRequest struct {
	Model           string          `json:"model"`
	Messages        []wireMessage   `json:"messages"`
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens int64           `json:"max_output_tokens,omitempty"`
	Reasoning       *wireReasoning  `json:"reasoning,omitempty"`
	ResponseFormat  json.RawMessage `json:"response_format,omitempty"`
}

// wireResponse covers both accepted response shapes.
type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage wireUsage `json:"usage"`
}

// wireUsage reads token counts under either naming convention.
type wireUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	InputTokens      int64 `json:"input_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	ReasoningTokens  int64 `json:"reasoning_tokens"`

	CompletionTokensDetails struct {
		ReasoningTokens int64 `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
	PromptTokensDetails struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// Complete performs one chat completion.
func (p *HTTPProvider) Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	wire := wireRequest{
		Model: req.Model,
		Messages: []wireMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.ReasoningEffort != "" || req.ReasoningBudget > 0 {
		wire.Reasoning = &wireReasoning{
			Effort:       req.ReasoningEffort,
			BudgetTokens: req.ReasoningBudget,
		}
	}
	if req.ResponseFormat != nil {
		rf, err := json.Marshal(map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.ResponseFormat.Name,
				"strict": true,
				"schema": req.ResponseFormat.ProviderSchema(),
			},
		})
		if err != nil {
			return nil, eris.Wrap(err, "llm: marshal response format")
		}
		wire.ResponseFormat = rf
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, eris.Wrap(err, "llm: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "llm: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if req.CacheSystem {
		httpReq.Header.Set("X-Prompt-Cache", "enabled")
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "llm: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "llm: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewProviderError(resp.StatusCode, truncate(string(respBody), 500))
	}

	var result wireResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "llm: unmarshal response")
	}

	text, ok := extractContent(result)
	if !ok {
		return nil, &DecodeError{Reason: "response carried neither choices nor output blocks", Raw: truncate(string(respBody), 200)}
	}

	return &ProviderResponse{
		ID:       result.ID,
		Model:    result.Model,
		Text:     text,
		Usage:    normalizeUsage(result.Usage, req.System+req.User, text),
		CacheHit: result.Usage.PromptTokensDetails.CachedTokens > 0,
	}, nil
}

// extractContent accepts either response shape.
func extractContent(r wireResponse) (string, bool) {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content, true
	}
	for _, block := range r.Output {
		if block.Type != "message" {
			continue
		}
		for _, c := range block.Content {
			if c.Type == "output_text" || c.Type == "text" {
				return c.Text, true
			}
		}
	}
	return "", false
}

func normalizeUsage(u wireUsage, promptText, outputText string) model.TokenUsage {
	in := u.PromptTokens
	if in == 0 {
		in = u.InputTokens
	}
	if in == 0 {
		in = estimateTokens(promptText)
	}

	out := u.CompletionTokens
	if out == 0 {
		out = u.OutputTokens
	}
	if out == 0 {
		out = estimateTokens(outputText)
	}

	reasoning := u.ReasoningTokens
	if reasoning == 0 {
		reasoning = u.CompletionTokensDetails.ReasoningTokens
	}

	return model.TokenUsage{
		InputTokens:     in,
		OutputTokens:    out,
		ReasoningTokens: reasoning,
		CacheReadTokens: u.PromptTokensDetails.CachedTokens,
	}
}
