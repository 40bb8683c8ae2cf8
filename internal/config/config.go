package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	BrasilAPI  BrasilAPIConfig  `yaml:"brasilapi" mapstructure:"brasilapi"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// BatchConfig paces batch runs. MaxConcurrent of 1 processes targets in order.
type BatchConfig struct {
	DelayMS       int `yaml:"delay_ms" mapstructure:"delay_ms"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// SearchConfig configures the evidence search adapter.
type SearchConfig struct {
	Primary     string `yaml:"primary" mapstructure:"primary"`
	Limit       int    `yaml:"limit" mapstructure:"limit"`
	Country     string `yaml:"country" mapstructure:"country"`
	Language    string `yaml:"language" mapstructure:"language"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SerperConfig holds Serper (Google search) credentials.
type SerperConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BrasilAPIConfig configures the public CNPJ registry lookup.
type BrasilAPIConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ApolloConfig holds the premium enrichment provider settings.
type ApolloConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	MonthlyLimit int    `yaml:"monthly_limit" mapstructure:"monthly_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ScoringConfig points at the evidence playbook. Empty uses the built-in one.
type ScoringConfig struct {
	PlaybookPath string `yaml:"playbook_path" mapstructure:"playbook_path"`
}

// EnrichmentConfig configures the layered enrichment run.
type EnrichmentConfig struct {
	LayerTimeoutSecs int    `yaml:"layer_timeout_secs" mapstructure:"layer_timeout_secs"`
	QuotaTimezone    string `yaml:"quota_timezone" mapstructure:"quota_timezone"`
}

// ResilienceConfig tunes provider breakers and store write retries.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseMS      int `yaml:"retry_base_ms" mapstructure:"retry_base_ms"`
}

// LayerTimeout returns the per-layer deadline.
func (c EnrichmentConfig) LayerTimeout() time.Duration {
	return time.Duration(c.LayerTimeoutSecs) * time.Second
}

// Location resolves the quota timezone, falling back to UTC.
func (c EnrichmentConfig) Location() *time.Location {
	if c.QuotaTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		zap.L().Warn("config: unknown quota timezone, using UTC",
			zap.String("timezone", c.QuotaTimezone), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lead-intel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.delay_ms", 2000)
	v.SetDefault("batch.max_concurrent", 1)
	v.SetDefault("search.primary", "serper")
	v.SetDefault("search.limit", 10)
	v.SetDefault("search.country", "br")
	v.SetDefault("search.language", "pt-br")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("brasilapi.base_url", "https://brasilapi.com.br")
	v.SetDefault("apollo.base_url", "https://api.apollo.io")
	v.SetDefault("apollo.monthly_limit", 50)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("enrichment.layer_timeout_secs", 30)
	v.SetDefault("enrichment.quota_timezone", "UTC")
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown_secs", 30)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_base_ms", 200)

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

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Apollo.MonthlyLimit < 0 {
		errs = append(errs, "apollo.monthly_limit must be >= 0")
	}
	if c.Batch.MaxConcurrent < 1 {
		errs = append(errs, "batch.max_concurrent must be >= 1")
	}
	if c.Search.Primary != "serper" && c.Search.Primary != "jina" {
		errs = append(errs, "search.primary must be serper or jina")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
