// Package config holds the daemon configuration and its viper-based loader.
package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main orquestrad configuration
type Config struct {
	// Store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Classifier
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`

	// Agents
	Agents AgentsConfig `json:"agents" mapstructure:"agents"`

	// Circuit breaker
	Breaker BreakerConfig `json:"breaker" mapstructure:"breaker"`

	// Session history
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Optional synonym-override file for the name resolver
	SynonymsFile string `json:"synonyms_file" mapstructure:"synonyms_file"`
}

// StoreConfig selects and addresses the key-value backend
type StoreConfig struct {
	Backend      string `json:"backend" mapstructure:"backend"` // redis, sqlite, memory
	RedisURL     string `json:"redis_url" mapstructure:"redis_url"`
	SQLitePath   string `json:"sqlite_path" mapstructure:"sqlite_path"`
	SweepSeconds int    `json:"sweep_seconds" mapstructure:"sweep_seconds"`
}

// ClassifierConfig bounds the intent classifier call
type ClassifierConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxAttempts    int     `json:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseMs  int     `json:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int     `json:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// AgentsConfig configures the registered agent capabilities
type AgentsConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxAttempts    int     `json:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	MaxFailures    int `json:"max_failures" mapstructure:"max_failures"`
	OpenTTLSeconds int `json:"open_ttl_seconds" mapstructure:"open_ttl_seconds"`
}

// HistoryConfig bounds per-session conversation history
type HistoryConfig struct {
	MaxTurns          int `json:"max_turns" mapstructure:"max_turns"`
	SessionTTLSeconds int `json:"session_ttl_seconds" mapstructure:"session_ttl_seconds"`
}

// GatewayConfig holds the HTTP server settings
type GatewayConfig struct {
	Host   string `json:"host" mapstructure:"host"`
	Port   int    `json:"port" mapstructure:"port"`
	APIKey string `json:"api_key" mapstructure:"api_key"` // empty skips auth
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the configuration used when no file or env overrides
// are present
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:      "redis",
			RedisURL:     "redis://127.0.0.1:6379/0",
			SQLitePath:   "orquestra.db",
			SweepSeconds: 60,
		},
		Classifier: ClassifierConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0,
			MaxAttempts:    2,
			BackoffBaseMs:  300,
			BackoffMaxMs:   2000,
			TimeoutSeconds: 15,
		},
		Agents: AgentsConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0,
			MaxAttempts:    3,
			TimeoutSeconds: 30,
		},
		Breaker: BreakerConfig{
			MaxFailures:    3,
			OpenTTLSeconds: 60,
		},
		History: HistoryConfig{
			MaxTurns:          200,
			SessionTTLSeconds: 86400,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Validate checks the configuration for values that would break startup
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store backend: %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("redis backend requires store.redis_url")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("sqlite backend requires store.sqlite_path")
	}
	switch c.Classifier.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid classifier provider: %q", c.Classifier.Provider)
	}
	switch c.Agents.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid agents provider: %q", c.Agents.Provider)
	}
	if c.Classifier.MaxAttempts < 1 {
		return fmt.Errorf("classifier.max_attempts must be at least 1")
	}
	if c.Breaker.MaxFailures < 1 {
		return fmt.Errorf("breaker.max_failures must be at least 1")
	}
	if c.Breaker.OpenTTLSeconds < 1 {
		return fmt.Errorf("breaker.open_ttl_seconds must be at least 1")
	}
	if c.History.MaxTurns < 1 {
		return fmt.Errorf("history.max_turns must be at least 1")
	}
	if c.History.SessionTTLSeconds < 1 {
		return fmt.Errorf("history.session_ttl_seconds must be at least 1")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	return nil
}

// String returns the configuration as indented JSON, for startup logging
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}
