package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/cost"
	"github.com/timewise-games/content-cli/internal/coverage"
	"github.com/timewise-games/content-cli/internal/kb"
	"github.com/timewise-games/content-cli/internal/monitoring"
	"github.com/timewise-games/content-cli/internal/orchestrator"
	"github.com/timewise-games/content-cli/internal/pipeline"
	"github.com/timewise-games/content-cli/internal/quality"
	"github.com/timewise-games/content-cli/internal/ratelimit"
	"github.com/timewise-games/content-cli/internal/resilience"
	"github.com/timewise-games/content-cli/internal/store"
	"github.com/timewise-games/content-cli/pkg/llm"
)

// pipelineEnv holds the initialized store, validator, planner, and
// orchestrator needed by the batch/coverage commands.
type pipelineEnv struct {
	Store        store.Store
	Validator    *quality.Validator
	Planner      *coverage.Planner
	Orchestrator *orchestrator.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, knowledge base, LLM client, and batch
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, ratesFile string) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	validator, err := quality.NewValidator(kb.NewFileStore(cfg.KB.Path))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("knowledge base loaded",
		zap.String("path", cfg.KB.Path),
		zap.Int("phrases", validator.PhraseCount()),
	)

	client, err := initLLMClient(ratesFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	temp := cfg.LLM.Temperature
	opts := llm.Options{
		Temperature:     &temp,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		ReasoningEffort: cfg.LLM.ReasoningEffort,
	}

	runner := pipeline.NewRunner(
		pipeline.NewGenerator(client, opts),
		pipeline.NewCritic(client, validator, opts),
		pipeline.NewReviser(client, opts),
		validator,
		monitoring.NewLogSink(zap.L()),
	)

	planner := coverage.NewPlanner(st, cfg.Coverage.MinYear, cfg.Coverage.MaxYear)
	limiter := ratelimit.New(cfg.Batch.RefillPerSec, cfg.Batch.BurstCapacity)

	return &pipelineEnv{
		Store:        st,
		Validator:    validator,
		Planner:      planner,
		Orchestrator: orchestrator.New(runner, planner, limiter, st),
	}, nil
}

// initLLMClient builds the generation client with retry, circuit breakers,
// model fallback, and cost accounting. A missing API key fails here, before
// any year is attempted.
func initLLMClient(ratesFile string) (llm.Client, error) {
	if strings.TrimSpace(cfg.LLM.Key) == "" {
		return nil, eris.New("llm api key is required (CONTENT_LLM_KEY)")
	}

	rates := cost.DefaultRates()
	if ratesFile != "" {
		var err error
		rates, err = cost.LoadRatesFile(ratesFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("custom rates loaded", zap.String("path", ratesFile))
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = llm.NewAnthropicProvider(cfg.LLM.Key)
	case "openai", "openai-compatible":
		provider = llm.NewHTTPProvider(cfg.LLM.Key, llm.WithBaseURL(cfg.LLM.BaseURL))
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.LLM.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.LLM.MaxRetries
	}

	clientCfg := llm.ClientConfig{
		Primary:    llm.ModelRef{Model: cfg.LLM.PrimaryModel, Provider: provider},
		Retry:      retryCfg,
		Calculator: cost.NewCalculator(rates),
		Breakers:   resilience.NewModelBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	if cfg.LLM.FallbackModel != "" {
		clientCfg.Fallback = llm.ModelRef{Model: cfg.LLM.FallbackModel, Provider: provider}
	}

	return llm.NewClient(clientCfg)
}
