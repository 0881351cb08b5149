package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr         string `env:"ADDR" envDefault:":8080"`
	DatabaseDSN  string `env:"DB_DSN,required"`
	JWTSecret    string `env:"JWT_SECRET,required"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Broker       string `env:"BROKER" envDefault:"redis"` // redis or memory
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	HistoryLimit int    `env:"HISTORY_LIMIT" envDefault:"50"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
