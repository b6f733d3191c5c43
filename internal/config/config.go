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
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerMin int    `yaml:"rate_per_min" mapstructure:"rate_per_min"`
}

// IngestConfig configures the ETL pipeline.
type IngestConfig struct {
	YearMin          int     `yaml:"year_min" mapstructure:"year_min"`
	YearMax          int     `yaml:"year_max" mapstructure:"year_max"`
	SuspiciousAmount float64 `yaml:"suspicious_amount" mapstructure:"suspicious_amount"`
	ReportDir        string  `yaml:"report_dir" mapstructure:"report_dir"`
}

// QueryConfig configures the question-answering engine.
type QueryConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	TranslateTimeoutSec int     `yaml:"translate_timeout_secs" mapstructure:"translate_timeout_secs"`
	NarrateTimeoutSecs  int     `yaml:"narrate_timeout_secs" mapstructure:"narrate_timeout_secs"`
	MaxNarrativeRows    int     `yaml:"max_narrative_rows" mapstructure:"max_narrative_rows"`
	ContextTTLMinutes   int     `yaml:"context_ttl_minutes" mapstructure:"context_ttl_minutes"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("BUDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "budget.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.rate_per_min", 50)
	v.SetDefault("ingest.year_min", 2015)
	v.SetDefault("ingest.year_max", 2030)
	v.SetDefault("ingest.suspicious_amount", 1_000_000_000)
	v.SetDefault("ingest.report_dir", "reports")
	v.SetDefault("query.confidence_threshold", 0.5)
	v.SetDefault("query.translate_timeout_secs", 30)
	v.SetDefault("query.narrate_timeout_secs", 30)
	v.SetDefault("query.max_narrative_rows", 50)
	v.SetDefault("query.context_ttl_minutes", 10)

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
