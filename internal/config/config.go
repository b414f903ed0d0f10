package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingToken is returned when the bot is started without a token
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Config holds application configuration
type Config struct {
	TelegramToken string        `env:"TELEGRAM_BOT_TOKEN"`
	DatabasePath  string        `env:"DATABASE_PATH"  envDefault:"./herb_bot.db"`
	HoldThreshold time.Duration `env:"HOLD_THRESHOLD" envDefault:"500ms"`
	PuffDuration  time.Duration `env:"PUFF_DURATION"  envDefault:"2s"`
	SendRate      float64       `env:"SEND_RATE"      envDefault:"25"`
	SendBurst     int           `env:"SEND_BURST"     envDefault:"5"`
	Timezone      string        `env:"TIMEZONE"       envDefault:"Local"`

	location *time.Location
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.Local
	}
	cfg.location = loc

	if cfg.SendRate <= 0 {
		cfg.SendRate = 25
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 5
	}

	return &cfg, nil
}

// Location is the resolved TIMEZONE
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// RequireToken checks that the bot can be started
func (c *Config) RequireToken() error {
	if c.TelegramToken == "" {
		return ErrMissingToken
	}
	return nil
}
