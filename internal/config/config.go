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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Trends    TrendsConfig    `yaml:"trends" mapstructure:"trends"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for evidence extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RenderConfig holds the headless-rendering service settings. An empty key
// disables rendering; fetch falls back to the plain HTTP path.
type RenderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the resilient fetch layer.
type FetchConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseMS  int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	RespectRobots  bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// CrawlConfig configures multi-page traversal.
type CrawlConfig struct {
	MaxPages     int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth     int      `yaml:"max_depth" mapstructure:"max_depth"`
	DelayMS      int      `yaml:"delay_ms" mapstructure:"delay_ms"`
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// IngestConfig configures the orchestrator.
type IngestConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
}

// TrendsConfig configures trend recomputation.
type TrendsConfig struct {
	WindowDays       int     `yaml:"window_days" mapstructure:"window_days"`
	AnomalyThreshold float64 `yaml:"anomaly_threshold" mapstructure:"anomaly_threshold"`
}

// SchedulerConfig configures the cron-grouped scheduler.
type SchedulerConfig struct {
	StaggerSecs int `yaml:"stagger_secs" mapstructure:"stagger_secs"`
}

// SourcesConfig points at the source catalog file.
type SourcesConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
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
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricewatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("render.base_url", "https://r.jina.ai")
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_base_ms", 500)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.requests_per_sec", 2.0)
	v.SetDefault("crawl.max_pages", 25)
	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.delay_ms", 750)
	v.SetDefault("crawl.exclude_paths", []string{
		"/cart/*", "/checkout/*", "/account/*", "/login/*",
		"/legal/*", "/privacy/*", "/terms/*",
	})
	v.SetDefault("ingest.max_concurrent_sources", 3)
	v.SetDefault("trends.window_days", 30)
	v.SetDefault("trends.anomaly_threshold", 2.0)
	v.SetDefault("scheduler.stagger_secs", 5)
	v.SetDefault("sources.catalog_path", "sources.yaml")

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
