package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "auction_events"

// redisClient is the slice of *redis.Client the publisher needs
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes JSON encoded events on a Redis channel
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher wraps client; an empty channel falls back to DefaultChannel
func NewRedisPublisher(client redisClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (r *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event to %s: %w", event.Type, r.channel, err)
	}
	return nil
}
