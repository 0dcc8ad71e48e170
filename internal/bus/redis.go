package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Publisher = (*RedisPublisher)(nil)

// RedisPublisher publishes on the channel <prefix><pattern>.
// The client is owned by the caller and is not closed here.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	channel := p.prefix + msg.Pattern
	if err := p.client.Publish(ctx, channel, string(data)).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return nil }
