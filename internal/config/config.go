// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config is the full runtime configuration of the ingestion service.
type Config struct {
	Port     string `env:"PORT" envDefault:"8111"`
	Env      string `env:"ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage. The memory store is for local development; production uses
	// Firestore and needs a project id.
	UseMemoryStore     bool   `env:"USE_MEMORY_STORE" envDefault:"false"`
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`

	// AI extraction. An empty key disables the AI tier; messages the format
	// and pattern tiers cannot handle are then recorded as failed.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`

	// Deduplication windows.
	IdempotencyWindow time.Duration `env:"IDEMPOTENCY_WINDOW" envDefault:"5m"`
	CrossSourceWindow time.Duration `env:"CROSS_SOURCE_WINDOW" envDefault:"15m"`

	// Per-message processing deadline, including AI provider retries.
	MessageTimeout time.Duration `env:"MESSAGE_TIMEOUT" envDefault:"30s"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:1234,http://127.0.0.1:1234"`
}

// Load parses configuration from process environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.UseMemoryStore && c.Env != "local" && c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required unless USE_MEMORY_STORE=true or ENV=local")
	}
	if c.IdempotencyWindow <= 0 {
		return fmt.Errorf("IDEMPOTENCY_WINDOW must be positive, got %s", c.IdempotencyWindow)
	}
	if c.CrossSourceWindow < c.IdempotencyWindow {
		return fmt.Errorf("CROSS_SOURCE_WINDOW (%s) must not be shorter than IDEMPOTENCY_WINDOW (%s)",
			c.CrossSourceWindow, c.IdempotencyWindow)
	}
	return nil
}

// Local reports whether the service runs in local development mode.
func (c *Config) Local() bool {
	return c.UseMemoryStore || c.Env == "local"
}
