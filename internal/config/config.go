// Package config loads application configuration from file and environment
// and owns the global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stablewatch/ecosystem-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Records   RecordsConfig   `yaml:"records" mapstructure:"records"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Refdata   RefdataConfig   `yaml:"refdata" mapstructure:"refdata"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Grid      GridConfig      `yaml:"grid" mapstructure:"grid"`
	DefiLlama DefiLlamaConfig `yaml:"defillama" mapstructure:"defillama"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko" mapstructure:"coingecko"`
	Webscan   WebscanConfig   `yaml:"webscan" mapstructure:"webscan"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// RecordsConfig locates the record store file.
type RecordsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RefdataConfig locates the reference data overrides file.
type RefdataConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MatchConfig tunes registry match acceptance.
type MatchConfig struct {
	Threshold        float64 `yaml:"threshold" mapstructure:"threshold"`
	OfflineThreshold float64 `yaml:"offline_threshold" mapstructure:"offline_threshold"`
	SnapshotPath     string  `yaml:"snapshot_path" mapstructure:"snapshot_path"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// GridConfig holds The Grid registry API settings.
type GridConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DefiLlamaConfig holds DefiLlama API settings.
type DefiLlamaConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CoinGeckoConfig holds CoinGecko API settings. The public tier works
// without a key but rate limits hard.
type CoinGeckoConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WebscanConfig configures website liveness scanning.
type WebscanConfig struct {
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings for the research stage.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures enrichment execution.
type PipelineConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	Rollback    bool `yaml:"rollback" mapstructure:"rollback"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields the given mode needs before it starts.
// Modes: "pipeline" (enrichment runs), "serve" (HTTP API), "research"
// (AI research stage enabled).
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Pipeline.Concurrency >= 1 && c.Pipeline.Concurrency <= 32,
		"pipeline.concurrency must be between 1 and 32")
	check(c.Match.Threshold >= 0 && c.Match.Threshold <= 1,
		"match.threshold must be between 0 and 1")
	check(c.Match.OfflineThreshold >= 0 && c.Match.OfflineThreshold <= 1,
		"match.offline_threshold must be between 0 and 1")
	check(c.Dedup.FuzzyThreshold >= 0 && c.Dedup.FuzzyThreshold <= 1,
		"dedup.fuzzy_threshold must be between 0 and 1")

	switch mode {
	case "pipeline":
		check(c.Records.Path != "", "records.path is required")
		check(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		if c.Store.Driver == "postgres" {
			check(c.Store.DatabaseURL != "", "store.database_url is required for postgres")
		}
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Records.Path != "", "records.path is required")
	case "research":
		check(c.Anthropic.Key != "", "anthropic.key is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ECOSYSTEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("records.path", "records.csv")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "jobs.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("match.threshold", 0.8)
	v.SetDefault("match.offline_threshold", 0.85)
	v.SetDefault("dedup.fuzzy_threshold", 0.9)
	v.SetDefault("grid.base_url", "https://api.thegrid.id/graphql")
	v.SetDefault("grid.rate_limit", 5.0)
	v.SetDefault("defillama.base_url", "https://api.llama.fi")
	v.SetDefault("defillama.rate_limit", 2.0)
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.rate_limit", 0.5)
	v.SetDefault("webscan.user_agent", "stablewatch-ecosystem-cli/1.0")
	v.SetDefault("webscan.rate_limit", 4.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
