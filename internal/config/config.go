// Package config reads the server settings from the environment. A .env file in the
// working directory is loaded by cmd/server before Load is called.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/rummy/internal/feed"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the server.
type Config struct {
	TCPAddr  string
	HTTPAddr string // empty disables the HTTP/WebSocket listener

	Rules      game.HouseRules
	OutboxSize int

	RateLimit time.Duration // minimum spacing between inbound frames, refilled by RateBurst
	RateBurst int

	RedisAddr   string // empty disables the Redis feed
	RedisDB     int
	FeedChannel string
	NATSURL     string // empty disables the NATS feed
	NATSSubject string

	Inactivity time.Duration // spectator: a table silent this long is reported idle
	LogLevel   logrus.Level
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	policy, err := game.ParseDisconnectPolicy(getEnv("DISCONNECT_POLICY", string(game.DisconnectAbort)))
	if err != nil {
		return Config{}, err
	}
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var parseErrs []error
	envInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}

	cfg := Config{
		TCPAddr:  getEnv("RUMMY_TCP_ADDR", ":65432"),
		HTTPAddr: os.Getenv("RUMMY_HTTP_ADDR"),
		Rules: game.HouseRules{
			Players:          envInt("RUMMY_PLAYERS", game.MinPlayers),
			TurnTimeout:      time.Duration(envInt("TURN_TIMEOUT_SEC", 0)) * time.Second,
			DisconnectPolicy: policy,
		},
		OutboxSize:  envInt("OUTBOX_SIZE", game.DefaultOutboxSize),
		RateLimit:   time.Duration(envInt("RATE_LIMIT_MS", 100)) * time.Millisecond,
		RateBurst:   envInt("RATE_BURST", 10),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisDB:     envInt("REDIS_DB", 0),
		FeedChannel: getEnv("FEED_CHANNEL", feed.DefaultRedisChannel),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT", feed.DefaultNATSSubject),
		Inactivity:  time.Duration(envInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
		LogLevel:    level,
	}
	if err := errors.Join(parseErrs...); err != nil {
		return Config{}, err
	}
	if _, set := os.LookupEnv("RUMMY_HTTP_ADDR"); !set {
		cfg.HTTPAddr = ":8080"
	}

	if err := cfg.Rules.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid house rules: %w", err)
	}
	if cfg.OutboxSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", cfg.OutboxSize)
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MS and RATE_BURST must be positive")
	}
	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as an integer. An unset variable yields def.
func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: must be an integer", key, s)
	}
	return v, nil
}
