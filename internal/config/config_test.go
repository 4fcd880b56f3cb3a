package config

import (
	"testing"
	"time"

	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":65432", cfg.TCPAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, game.DefaultHouseRules(), cfg.Rules)
	assert.Equal(t, game.DefaultOutboxSize, cfg.OutboxSize)
	assert.Equal(t, 100*time.Millisecond, cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "rummy_events", cfg.FeedChannel)
	assert.Equal(t, "rummy.events", cfg.NATSSubject)
	assert.Equal(t, 10*time.Minute, cfg.Inactivity)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RUMMY_TCP_ADDR", "127.0.0.1:7000")
	t.Setenv("RUMMY_HTTP_ADDR", "")
	t.Setenv("RUMMY_PLAYERS", "4")
	t.Setenv("TURN_TIMEOUT_SEC", "30")
	t.Setenv("DISCONNECT_POLICY", "skip")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.TCPAddr)
	assert.Empty(t, cfg.HTTPAddr, "an explicitly empty address disables HTTP")
	assert.Equal(t, 4, cfg.Rules.Players)
	assert.Equal(t, 30*time.Second, cfg.Rules.TurnTimeout)
	assert.Equal(t, game.DisconnectSkip, cfg.Rules.DisconnectPolicy)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RUMMY_PLAYERS":     "6",
		"DISCONNECT_POLICY": "pause",
		"LOG_LEVEL":         "loud",
		"OUTBOX_SIZE":       "-1",
		"RATE_BURST":        "lots",
		"REDIS_DB":          "1.5",
		"TURN_TIMEOUT_SEC":  "soon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadReportsUnparsableInteger(t *testing.T) {
	t.Setenv("RUMMY_PLAYERS", "abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUMMY_PLAYERS")
}
