// Package config loads application configuration from an optional YAML
// file plus REFRESH_-prefixed environment variables.
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
	Snapshots  SnapshotConfig   `yaml:"snapshots" mapstructure:"snapshots"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Backoff    BackoffConfig    `yaml:"backoff" mapstructure:"backoff"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SnapshotConfig configures the two-generation snapshot store.
type SnapshotConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// RegistryConfig points at the tracked venue list.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// FetchConfig configures venue page fetching.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures the tier coordinator.
type PipelineConfig struct {
	Name              string  `yaml:"name" mapstructure:"name"`
	HoursThreshold    int     `yaml:"hours_threshold" mapstructure:"hours_threshold"`
	Tier3BatchSize    int     `yaml:"tier3_batch_size" mapstructure:"tier3_batch_size"`
	LLMCallsPerMinute float64 `yaml:"llm_calls_per_minute" mapstructure:"llm_calls_per_minute"`
}

// BackoffConfig configures the run-level rate limit backoff.
type BackoffConfig struct {
	InitialWaitSecs int     `yaml:"initial_wait_secs" mapstructure:"initial_wait_secs"`
	MaxWaitSecs     int     `yaml:"max_wait_secs" mapstructure:"max_wait_secs"`
	Multiplier      float64 `yaml:"multiplier" mapstructure:"multiplier"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LockConfig configures the pipeline lock.
type LockConfig struct {
	Dir            string `yaml:"dir" mapstructure:"dir"`
	StaleAfterMins int    `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
}

// MonitoringConfig configures run summary pushes and threshold alerts.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	UnresolvedRateThreshold float64 `yaml:"unresolved_rate_threshold" mapstructure:"unresolved_rate_threshold"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("REFRESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "refresh.db")
	v.SetDefault("snapshots.dir", "snapshots")
	v.SetDefault("registry.path", "venues.yaml")
	v.SetDefault("fetch.user_agent", "refresh-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 45)
	v.SetDefault("pipeline.name", "refresh")
	v.SetDefault("pipeline.hours_threshold", 3)
	v.SetDefault("pipeline.tier3_batch_size", 8)
	v.SetDefault("pipeline.llm_calls_per_minute", 30)
	v.SetDefault("backoff.initial_wait_secs", 3600)
	v.SetDefault("backoff.max_wait_secs", 7200)
	v.SetDefault("backoff.multiplier", 1.5)
	v.SetDefault("backoff.max_attempts", 100)
	v.SetDefault("lock.dir", "locks")
	v.SetDefault("lock.stale_after_mins", 180)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.unresolved_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
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

// Validate checks settings that must be present before the pipeline takes
// the lock. A missing LLM credential is a configuration error, not a tier
// failure.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required (REFRESH_ANTHROPIC_KEY)")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	return nil
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
