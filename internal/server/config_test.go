package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	req := require.New(t)
	cfg := DefaultConfig()

	req.NoError(cfg.Validate())
	req.Equal("0.0.0.0:3000", cfg.Addr())
	req.Equal(1000, cfg.HubCapacity)
	req.Equal([]string{"*"}, cfg.Origins())
	req.Zero(cfg.RateLimit.Burst)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("CHAT_HOST", "127.0.0.1")
	t.Setenv("CHAT_PORT", "9000")
	t.Setenv("HUB_CAPACITY", "16")
	t.Setenv("HISTORY_LIMIT", "0")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_INTERVAL", "2s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal("127.0.0.1:9000", cfg.Addr())
	req.Equal(16, cfg.HubCapacity)
	req.Zero(cfg.HistoryLimit)
	req.Equal(int64(1024), cfg.MaxMessageSize)
	req.Equal([]string{"http://a.example", "http://b.example"}, cfg.Origins())
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(2*time.Second, cfg.RateLimit.RefillInterval)
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig_RejectsInvalidCapacity(t *testing.T) {
	t.Setenv("HUB_CAPACITY", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)

	cfg := DefaultConfig()
	cfg.Port = 70000
	req.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.HistoryLimit = -1
	req.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxMessageSize = 0
	req.Error(cfg.Validate())
}
