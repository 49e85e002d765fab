// Package config loads runtime configuration for both binaries from an
// optional YAML file (CONFIG_PATH) with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Exchange holds the exchange service configuration.
type Exchange struct {
	Addr            string        `yaml:"address" env:"EXCHANGE_ADDR" env-default:":8000"`
	DatabasePath    string        `yaml:"database_path" env:"EXCHANGE_DB" env-default:"exchange.db"`
	AdminToken      string        `yaml:"admin_token" env:"ADMIN_TOKEN" env-required:"true"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"50"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"100"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// AgentPlatform holds the agent platform service configuration.
type AgentPlatform struct {
	Addr            string        `yaml:"address" env:"PLATFORM_ADDR" env-default:":8001"`
	DatabasePath    string        `yaml:"database_path" env:"PLATFORM_DB" env-default:"agentplatform.db"`
	ExchangeURL     string        `yaml:"exchange_url" env:"EXCHANGE_URL" env-default:"http://localhost:8000"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	TickTimeout     time.Duration `yaml:"tick_timeout" env:"TICK_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LoadExchange reads the exchange config, applying defaults, the YAML
// file named by CONFIG_PATH when set, and env overrides.
func LoadExchange() (*Exchange, error) {
	var cfg Exchange
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if !validLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	return &cfg, nil
}

// LoadAgentPlatform reads the agent platform config.
func LoadAgentPlatform() (*AgentPlatform, error) {
	var cfg AgentPlatform
	if err := load(&cfg); err != nil {
		return nil, err
	}
	if !validLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	return &cfg, nil
}

func load(cfg any) error {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read config from environment: %w", err)
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
