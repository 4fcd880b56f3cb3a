// internal/feed/redis.go
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "rummy_events"

// RedisPublisher publishes events on a Redis pub/sub channel. Nothing is stored:
// subscribers that are not listening simply miss the event.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisClient connects to Redis at addr and verifies the connection with a ping.
func NewRedisClient(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisPublisher connects to Redis and publishes on channel.
func NewRedisPublisher(addr string, db int, channel string) (*RedisPublisher, error) {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb, err := NewRedisClient(addr, db)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// Publish serializes the event to JSON and publishes it on the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := marshal(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to PUBLISH to Redis channel '%s': %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
