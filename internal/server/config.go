// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

var validate = validator.New()

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst disables limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=0" validate:"min=0"`
	RefillInterval time.Duration `env:"RATE_LIMIT_INTERVAL,default=1s"`
}

// Config holds the relay server settings.
type Config struct {
	Host            string        `env:"CHAT_HOST,default=0.0.0.0"`
	Port            int           `env:"CHAT_PORT,default=3000" validate:"min=0,max=65535"`
	HubCapacity     int           `env:"HUB_CAPACITY,default=1000" validate:"min=1"`
	HistoryLimit    int           `env:"HISTORY_LIMIT,default=1000" validate:"min=0"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=65536" validate:"min=1"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	RateLimit       RateLimitConfig
}

// DefaultConfig returns the settings used when no environment is provided.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            3000,
		HubCapacity:     1000,
		HistoryLimit:    1000,
		MaxMessageSize:  64 * 1024,
		AllowedOrigins:  "*",
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "INFO",
		RateLimit: RateLimitConfig{
			Burst:          0,
			RefillInterval: time.Second,
		},
	}
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if _, err := env.UnmarshalFromEnviron(&cfg.RateLimit); err != nil {
		return Config{}, fmt.Errorf("rate limit config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.sanitize(), nil
}

// Validate rejects settings the relay cannot run with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) sanitize() Config {
	if c.HubCapacity <= 0 {
		c.HubCapacity = 1000
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins returns the configured origin list, split on commas.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	parts := lo.Map(strings.Split(origins, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(parts)
}
