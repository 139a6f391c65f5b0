// Package config loads application configuration from file and environment.
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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Digitransit DigitransitConfig `yaml:"digitransit" mapstructure:"digitransit"`
	Overpass    OverpassConfig    `yaml:"overpass" mapstructure:"overpass"`
	Statfin     StatfinConfig     `yaml:"statfin" mapstructure:"statfin"`
	Generator   GeneratorConfig   `yaml:"generator" mapstructure:"generator"`
	Jobs        JobsConfig        `yaml:"jobs" mapstructure:"jobs"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Pool tuning applies to the postgres driver only.
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// DigitransitConfig holds Digitransit geocoding API settings.
type DigitransitConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OverpassConfig holds Overpass API settings.
type OverpassConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// StatfinConfig holds Statistics Finland PxWeb API settings.
type StatfinConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeneratorConfig configures candidate generation.
type GeneratorConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
}

// JobsConfig configures the in-memory job registry.
type JobsConfig struct {
	TTLSecs       int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
	SweepSecs     int `yaml:"sweep_secs" mapstructure:"sweep_secs"`
	KeepaliveSecs int `yaml:"keepalive_secs" mapstructure:"keepalive_secs"`
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
	v.SetEnvPrefix("SPOTLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "spotlight.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("digitransit.key", "")
	v.SetDefault("digitransit.base_url", "https://api.digitransit.fi/geocoding/v1")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("statfin.base_url", "https://pxdata.stat.fi/PxWeb/api/v1")
	v.SetDefault("generator.default_limit", 10)
	v.SetDefault("jobs.ttl_secs", 3600)
	v.SetDefault("jobs.sweep_secs", 60)
	v.SetDefault("jobs.keepalive_secs", 60)

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

// Validate checks settings a command cannot run without. Mode is the command
// name; serve additionally needs a usable port and job registry settings.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Jobs.TTLSecs <= 0 {
			problems = append(problems, "jobs.ttl_secs must be > 0")
		}
		if c.Jobs.SweepSecs <= 0 {
			problems = append(problems, "jobs.sweep_secs must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
