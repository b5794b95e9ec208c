package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string `toml:"-"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`
	// sentry
	SentryEnabled bool `toml:"sentry_enabled"`
	// storage
	DataDirPath string `toml:"data_dir_path"`
	// quotes
	QuotesCsvPath string `toml:"quotes_csv_path"`
	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`
	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
	// rate limiting for the workout generation endpoints
	// (each request results in one paid model call)
	GenerateRateLimitAllowedPerMin int `toml:"generate_rate_limit_allowed_per_min"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development", "ddev", "dockerdev":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env %s not found in %s", env, path)
	}

	cfg.Environment = env
	return cfg, nil
}
