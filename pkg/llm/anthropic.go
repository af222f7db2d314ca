package llm

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/resilience"
)

// AnthropicProvider serves completions through the official
// anthropic-sdk-go. Structured output is requested by appending the JSON
// schema to the system prompt; the client re-validates the payload either
// way, so a model that ignores the instruction is caught, not trusted.
type AnthropicProvider struct {
	client sdk.Client
}

// NewAnthropicProvider creates a provider backed by the Anthropic SDK.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

// Name identifies the provider in logs and config.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete performs one Messages API call.
func (p *AnthropicProvider) Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	system := req.System
	if req.ResponseFormat != nil {
		system += "\n\nRespond with a single JSON object matching this JSON Schema, with no surrounding prose:\n" +
			string(req.ResponseFormat.ProviderSchema())
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	systemBlock := sdk.TextBlockParam{Text: system}
	if req.CacheSystem {
		systemBlock.CacheControl = sdk.NewCacheControlEphemeralParam()
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		System:    []sdk.TextBlockParam{systemBlock},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.ReasoningBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamUnion{
			OfEnabled: &sdk.ThinkingConfigEnabledParam{
				BudgetTokens: req.ReasoningBudget,
			},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.NewProviderError(apiErr.StatusCode, apiErr.Error())
		}
		return nil, eris.Wrap(err, "llm: anthropic create message")
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}

	usage := model.TokenUsage{
		InputTokens:     msg.Usage.InputTokens,
		OutputTokens:    msg.Usage.OutputTokens,
		CacheReadTokens: msg.Usage.CacheReadInputTokens,
	}
	if usage.InputTokens == 0 {
		usage.InputTokens = estimateTokens(system + req.User)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = estimateTokens(text)
	}

	return &ProviderResponse{
		ID:       msg.ID,
		Model:    string(msg.Model),
		Text:     text,
		Usage:    usage,
		CacheHit: msg.Usage.CacheReadInputTokens > 0,
	}, nil
}
