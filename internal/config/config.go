// Package config loads Hearth runtime configuration from TOML with env
// overrides.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Routing  RoutingConfig  `toml:"routing"`
	Session  SessionConfig  `toml:"session"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	NATS     NATSConfig     `toml:"nats"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	// RoutingModel, when set, serves routing calls while Model serves
	// agent calls.
	RoutingModel string `toml:"routing_model"`
	APIKey       string `toml:"api_key"`
}

type RoutingConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	MaxAttempts         int     `toml:"max_attempts"`
	FallbackAgent       string  `toml:"fallback_agent"`
	CacheEnabled        bool    `toml:"cache_enabled"`
}

type SessionConfig struct {
	TTLSeconds      int `toml:"ttl_seconds"`
	MaxHistoryItems int `toml:"max_history_items"`
	// InvokeTimeoutSeconds bounds one agent invocation.
	InvokeTimeoutSeconds int `toml:"invoke_timeout_seconds"`
}

type DatabaseConfig struct {
	// Driver is "memory", "sqlite", or "postgres".
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type NATSConfig struct {
	URL        string `toml:"url"`
	ClientName string `toml:"client_name"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Routing: RoutingConfig{
			ConfidenceThreshold: 0.7,
			MaxAttempts:         2,
			FallbackAgent:       "general-assistant",
		},
		Session: SessionConfig{
			TTLSeconds:           300,
			MaxHistoryItems:      20,
			InvokeTimeoutSeconds: 30,
		},
		Database: DatabaseConfig{Driver: "memory", Path: "hearth.db"},
		NATS:     NATSConfig{ClientName: "hearth"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "hearth.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("HEARTH_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("HEARTH_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("HEARTH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HEARTH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if os.Getenv("HEARTH_OBSERVER_ENABLED") == "true" || os.Getenv("HEARTH_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.LLM.RoutingModel == "" {
		cfg.LLM.RoutingModel = cfg.LLM.Model
	}

	return cfg
}
