package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the file/env configuration of a batch run.
type Config struct {
	Provider        string                `mapstructure:"provider"`
	Batch           BatchConfig           `mapstructure:"batch"`
	SelfConsistency SelfConsistencyConfig `mapstructure:"self_consistency"`
	Gemini          GeminiConfig          `mapstructure:"gemini"`
	Anthropic       AnthropicConfig       `mapstructure:"anthropic"`
	Log             LogConfig             `mapstructure:"log"`
}

type BatchConfig struct {
	Workers    int           `mapstructure:"workers"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Jitter     float64       `mapstructure:"jitter"`
	RateLimit  time.Duration `mapstructure:"rate_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ChunkSize  int           `mapstructure:"chunk_size"`
}

type SelfConsistencyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Rounds   int    `mapstructure:"rounds"`
	Strategy string `mapstructure:"strategy"`
}

type GeminiConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature *float32 `mapstructure:"temperature"`
	MaxTokens   int32    `mapstructure:"max_tokens"`
}

type AnthropicConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	MaxTokens   int64    `mapstructure:"max_tokens"`
	Temperature *float64 `mapstructure:"temperature"`
	BaseURL     string   `mapstructure:"base_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from path, or from ./reconcile.yaml when
// path is empty (the file is optional then). RECONCILE_* environment
// variables override file values, e.g. RECONCILE_BATCH_WORKERS.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reconcile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_key", "RECONCILE_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("anthropic.api_key", "RECONCILE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini.temperature")
	_ = v.BindEnv("anthropic.temperature")

	v.SetDefault("provider", "gemini")
	v.SetDefault("batch.workers", DefaultConcurrency)
	v.SetDefault("batch.max_retries", DefaultMaxRetries)
	v.SetDefault("batch.base_delay", DefaultBaseDelay)
	v.SetDefault("batch.max_delay", 0)
	v.SetDefault("batch.jitter", 0.0)
	v.SetDefault("batch.rate_limit", 0)
	v.SetDefault("batch.timeout", 0)
	v.SetDefault("batch.chunk_size", DefaultChunkSize)
	v.SetDefault("self_consistency.enabled", false)
	v.SetDefault("self_consistency.rounds", DefaultRounds)
	v.SetDefault("self_consistency.strategy", string(StrategyMajorityVote))
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.max_tokens", 0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini", "anthropic":
	default:
		return eris.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.Batch.Workers < 1 {
		return eris.Errorf("config: batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	if c.Batch.MaxRetries < 0 {
		return eris.Errorf("config: batch.max_retries must not be negative, got %d", c.Batch.MaxRetries)
	}
	if c.Batch.BaseDelay < 0 || c.Batch.MaxDelay < 0 || c.Batch.RateLimit < 0 || c.Batch.Timeout < 0 {
		return eris.New("config: batch durations must not be negative")
	}
	if c.Batch.Jitter < 0 || c.Batch.Jitter > 1 {
		return eris.Errorf("config: batch.jitter must be within [0, 1], got %v", c.Batch.Jitter)
	}
	if c.SelfConsistency.Enabled && c.SelfConsistency.Rounds < 1 {
		return eris.Errorf("config: self_consistency.rounds must be at least 1, got %d", c.SelfConsistency.Rounds)
	}
	if _, err := ParseStrategy(c.SelfConsistency.Strategy); err != nil {
		return eris.Wrap(err, "config: self_consistency.strategy")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return eris.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return eris.Wrap(err, "config: log.level")
	}
	return nil
}

// Model is the model name of the configured provider.
func (c *Config) Model() string {
	if c.Provider == "anthropic" {
		return c.Anthropic.Model
	}
	return c.Gemini.Model
}

// ExtractorOptions converts the configuration to functional options.
func (c *Config) ExtractorOptions() []func(*Options) {
	opts := []func(*Options){
		WithModel(c.Model()),
		WithConcurrency(c.Batch.Workers),
		WithRetry(c.Batch.MaxRetries, c.Batch.BaseDelay),
		WithMaxBackoff(c.Batch.MaxDelay),
		WithJitter(c.Batch.Jitter),
		WithRateLimit(c.Batch.RateLimit),
		WithTimeout(c.Batch.Timeout),
		WithChunkSize(c.Batch.ChunkSize),
	}
	if c.SelfConsistency.Enabled {
		strategy, _ := ParseStrategy(c.SelfConsistency.Strategy)
		opts = append(opts, WithSelfConsistency(c.SelfConsistency.Rounds, strategy))
	}
	return opts
}

// NewClient builds the completion client of the configured provider.
func (c *Config) NewClient(ctx context.Context, log *zap.Logger) (CompletionClient, error) {
	if log == nil {
		log = zap.L()
	}
	switch c.Provider {
	case "gemini":
		var opts []GenAIOption
		opts = append(opts, WithGenAILogger(log), WithGenAIMaxTokens(c.Gemini.MaxTokens))
		if c.Gemini.Temperature != nil {
			opts = append(opts, WithGenAITemperature(*c.Gemini.Temperature))
		}
		return NewGenAIClientFromKey(ctx, c.Gemini.APIKey, c.Gemini.Model, opts...)
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return nil, eris.New("anthropic: api key is required")
		}
		var reqOpts []option.RequestOption
		if c.Anthropic.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(c.Anthropic.BaseURL))
		}
		opts := []AnthropicOption{WithAnthropicLogger(log)}
		if c.Anthropic.Temperature != nil {
			opts = append(opts, WithAnthropicTemperature(*c.Anthropic.Temperature))
		}
		return NewAnthropicClient(c.Anthropic.APIKey, c.Anthropic.Model, c.Anthropic.MaxTokens, reqOpts, opts...), nil
	}
	return nil, eris.Errorf("config: unknown provider %q", c.Provider)
}

// NewLogger builds a zap logger: "console" gives the development encoder,
// anything else JSON.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return logger, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
