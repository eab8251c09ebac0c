// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all engine settings. Defaults suit a local single-node run.
type Config struct {
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`

	DecayInterval time.Duration `env:"REPUTATION_DECAY_INTERVAL" envDefault:"168h"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}
