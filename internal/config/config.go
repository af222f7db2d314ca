// Package config loads application configuration from yaml file and
// environment, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Coverage   CoverageConfig   `yaml:"coverage" mapstructure:"coverage"`
	KB         KBConfig         `yaml:"kb" mapstructure:"kb"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig holds provider credentials and model routing.
type LLMConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	PrimaryModel    string  `yaml:"primary_model" mapstructure:"primary_model"`
	FallbackModel   string  `yaml:"fallback_model" mapstructure:"fallback_model"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int64   `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	ReasoningEffort string  `yaml:"reasoning_effort" mapstructure:"reasoning_effort"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// BatchConfig configures batch generation throughput.
type BatchConfig struct {
	TargetCount   int     `yaml:"target_count" mapstructure:"target_count"`
	RefillPerSec  float64 `yaml:"refill_per_sec" mapstructure:"refill_per_sec"`
	BurstCapacity int     `yaml:"burst_capacity" mapstructure:"burst_capacity"`
}

// CoverageConfig bounds the supported year range (signed, BCE negative).
type CoverageConfig struct {
	MinYear int `yaml:"min_year" mapstructure:"min_year"`
	MaxYear int `yaml:"max_year" mapstructure:"max_year"`
}

// KBConfig locates the leaky-phrase knowledge base file.
type KBConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig holds pool-health alert thresholds.
type MonitoringConfig struct {
	FlaggedRateThreshold float64 `yaml:"flagged_rate_threshold" mapstructure:"flagged_rate_threshold"`
	MinUnusedPerBucket   int     `yaml:"min_unused_per_bucket" mapstructure:"min_unused_per_bucket"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "content.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.primary_model", "gpt-5-mini")
	v.SetDefault("llm.fallback_model", "gpt-5")
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.max_output_tokens", 4096)
	v.SetDefault("llm.reasoning_effort", "low")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("batch.target_count", 25)
	v.SetDefault("batch.refill_per_sec", 1.0)
	v.SetDefault("batch.burst_capacity", 5)
	v.SetDefault("coverage.min_year", -3000)
	v.SetDefault("coverage.max_year", 2020)
	v.SetDefault("kb.path", "kb/leaky_phrases.json")
	v.SetDefault("monitoring.flagged_rate_threshold", 0.40)
	v.SetDefault("monitoring.min_unused_per_bucket", 30)
	v.SetDefault("monitoring.dlq_depth_threshold", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
