// Package config loads process configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
	Provider ProviderConfig `yaml:"provider"`
	State    StateConfig    `yaml:"state"`

	// HistoryLimit bounds the transcript window handed to the model.
	HistoryLimit int    `yaml:"history_limit" env:"ASOBIBA_HISTORY_LIMIT"`
	LogLevel     string `yaml:"log_level" env:"ASOBIBA_LOG_LEVEL"`
}

// GatewayConfig configures the HTTP server.
type GatewayConfig struct {
	Host string `yaml:"host" env:"ASOBIBA_HOST"`
	Port int    `yaml:"port" env:"ASOBIBA_PORT"`
}

// SlackConfig holds Slack platform credentials. The adapter is registered
// only when BotToken is set.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token" env:"SLACK_BOT_TOKEN"`
	SigningSecret string `yaml:"signing_secret" env:"SLACK_SIGNING_SECRET"`
}

// TelegramConfig holds Telegram platform credentials.
type TelegramConfig struct {
	Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
}

// ProviderConfig selects and configures the generation backend.
type ProviderConfig struct {
	// Name is "anthropic" or "openai".
	Name            string `yaml:"name" env:"ASOBIBA_PROVIDER"`
	Model           string `yaml:"model" env:"ASOBIBA_MODEL"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
}

// StateConfig configures the subscription store.
type StateConfig struct {
	// Path is the SQLite database file; empty selects the in-memory store.
	Path string `yaml:"path" env:"ASOBIBA_STATE_PATH"`
	// SweepSchedule is a cron expression gating the stale-row sweeper.
	SweepSchedule string `yaml:"sweep_schedule" env:"ASOBIBA_SWEEP_SCHEDULE"`
	// SweepTTLDays is how long an untouched subscription row survives.
	SweepTTLDays int `yaml:"sweep_ttl_days" env:"ASOBIBA_SWEEP_TTL_DAYS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway:      GatewayConfig{Host: "0.0.0.0", Port: 3000},
		Provider:     ProviderConfig{Name: "anthropic"},
		State:        StateConfig{SweepSchedule: "0 4 * * *", SweepTTLDays: 90},
		HistoryLimit: 20,
		LogLevel:     "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; env and defaults carry the config.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return cfg, nil
}
