// internal/feed/subscribe.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Decode parses one published event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid feed event: %w", err)
	}
	return ev, nil
}

// SubscribeRedis streams events from a Redis channel until ctx is done.
// Payloads that do not decode are passed to onError and skipped.
func SubscribeRedis(ctx context.Context, rdb *redis.Client, channel string, onError func(error)) (<-chan Event, error) {
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to SUBSCRIBE to Redis channel '%s': %w", channel, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					onError(err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SubscribeNATS streams events published under prefix (every session) until ctx is done.
func SubscribeNATS(ctx context.Context, nc *nats.Conn, prefix string, onError func(error)) (<-chan Event, error) {
	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(prefix+".>", msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to NATS subject '%s.>': %w", prefix, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				ev, err := Decode(msg.Data)
				if err != nil {
					onError(err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
