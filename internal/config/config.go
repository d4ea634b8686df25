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
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Allowance  AllowanceConfig  `yaml:"allowance" mapstructure:"allowance"`
	Quota      QuotaConfig      `yaml:"quota" mapstructure:"quota"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SearchConfig holds contact-search provider settings.
type SearchConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerS float64 `yaml:"requests_per_s" mapstructure:"requests_per_s"`
}

// EnrichConfig holds enrichment provider settings.
type EnrichConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerS float64 `yaml:"requests_per_s" mapstructure:"requests_per_s"`
	// RevealPhones requests personal phone numbers from the provider.
	// Off by default because each reveal bills separately.
	RevealPhones bool `yaml:"reveal_phones" mapstructure:"reveal_phones"`
}

// AnthropicConfig holds Anthropic API settings for scoring and query building.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GenerationConfig configures orchestrator run sizing.
type GenerationConfig struct {
	// DefaultTarget is the lead count for unsubscribed customers,
	// SubscribedTarget for paying ones. The gate's caller picks which.
	DefaultTarget    int `yaml:"default_target" mapstructure:"default_target"`
	SubscribedTarget int `yaml:"subscribed_target" mapstructure:"subscribed_target"`
	// MaxConcurrentCustomers bounds the batch command's parallelism.
	MaxConcurrentCustomers int `yaml:"max_concurrent_customers" mapstructure:"max_concurrent_customers"`
}

// AllowanceConfig configures the per-customer refresh allowance.
type AllowanceConfig struct {
	// RefillAmount is what the allowance resets to when the last unit is
	// spent. Cooldown is the short wait between refreshes while allowance
	// remains.
	RefillAmount int           `yaml:"refill_amount" mapstructure:"refill_amount"`
	Cooldown     time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// QuotaConfig configures the organization monthly export quota.
type QuotaConfig struct {
	MonthlyAllotment int `yaml:"monthly_allotment" mapstructure:"monthly_allotment"`
}

// NotifyConfig configures the lead-created event publisher.
type NotifyConfig struct {
	AMQPURL  string `yaml:"amqp_url" mapstructure:"amqp_url"`
	Exchange string `yaml:"exchange" mapstructure:"exchange"`
}

// ServerConfig configures the HTTP trigger surface.
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
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "leadgen.db")
	v.SetDefault("search.base_url", "https://api.contactsearch.io")
	v.SetDefault("search.requests_per_s", 5)
	v.SetDefault("enrich.base_url", "https://api.enrichhub.io")
	v.SetDefault("enrich.requests_per_s", 5)
	v.SetDefault("enrich.reveal_phones", false)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("generation.default_target", 10)
	v.SetDefault("generation.subscribed_target", 20)
	v.SetDefault("generation.max_concurrent_customers", 5)
	v.SetDefault("allowance.refill_amount", 5)
	v.SetDefault("allowance.cooldown", time.Hour)
	v.SetDefault("quota.monthly_allotment", 100)
	v.SetDefault("notify.exchange", "leadgen.events")
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
