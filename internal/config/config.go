package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type API struct {
	Addr            string        `env:"TRADEUP_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	CollectCooldown time.Duration `env:"TRADEUP_COLLECT_COOLDOWN" envDefault:"30s"`
	SessionTTL      time.Duration `env:"TRADEUP_SESSION_TTL" envDefault:"24h"`
}

type CLI struct {
	APIBaseURL string `env:"TUP_API_BASE_URL" envDefault:"http://localhost:8080"`
}

func LoadAPI() (API, error) {
	var cfg API
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLI() (CLI, error) {
	var cfg CLI
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
