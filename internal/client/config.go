package client

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the terminal client settings.
type Config struct {
	URL  string `envconfig:"CHAT_URL" default:"ws://localhost:3000/ws"`
	Name string `envconfig:"CHAT_NAME"`
	// Colours enables ANSI colours in rendered messages.
	Colours      bool          `envconfig:"CHAT_COLOURS" default:"true"`
	ReconnectMax time.Duration `envconfig:"CHAT_RECONNECT_MAX" default:"8s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"WARN"`
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.ReconnectMax < time.Second {
		cfg.ReconnectMax = time.Second
	}
	return cfg, nil
}
