// Package config loads application configuration and initializes logging.
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
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeocodeConfig configures the primary geocoding backend.
type GeocodeConfig struct {
	GoogleKey     string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Region        string  `yaml:"region" mapstructure:"region"`
	BiasMinLat    float64 `yaml:"bias_min_lat" mapstructure:"bias_min_lat"`
	BiasMinLng    float64 `yaml:"bias_min_lng" mapstructure:"bias_min_lng"`
	BiasMaxLat    float64 `yaml:"bias_max_lat" mapstructure:"bias_max_lat"`
	BiasMaxLng    float64 `yaml:"bias_max_lng" mapstructure:"bias_max_lng"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	InterItemMS   int     `yaml:"inter_item_ms" mapstructure:"inter_item_ms"`
	BackoffStepMS int     `yaml:"backoff_step_ms" mapstructure:"backoff_step_ms"`
	BackoffCapMS  int     `yaml:"backoff_cap_ms" mapstructure:"backoff_cap_ms"`
}

// SearchConfig configures the secondary search-style backend used as a
// throttle-fallback source.
type SearchConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Email       string `yaml:"email" mapstructure:"email"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LLMConfig configures the generative-model extraction strategy.
type LLMConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig configures coordinator behavior.
type PipelineConfig struct {
	EntityWindowLines int `yaml:"entity_window_lines" mapstructure:"entity_window_lines"`
}

// StoreConfig configures confirmed-place persistence.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the review API server.
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
	v.SetEnvPrefix("PLACEPIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "places.db")
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.user_agent", "placepin-importer/1.0")
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("geocode.region", "us")
	// Continental US viewport bias.
	v.SetDefault("geocode.bias_min_lat", 24.5)
	v.SetDefault("geocode.bias_min_lng", -125.0)
	v.SetDefault("geocode.bias_max_lat", 49.5)
	v.SetDefault("geocode.bias_max_lng", -66.9)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.inter_item_ms", 500)
	v.SetDefault("geocode.backoff_step_ms", 500)
	v.SetDefault("geocode.backoff_cap_ms", 2000)
	v.SetDefault("search.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("search.email", "")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("llm.key", "")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.enabled", true)
	v.SetDefault("pipeline.entity_window_lines", 5)

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
