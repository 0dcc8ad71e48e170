package bus

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/garrettladley/paygate/internal/xslog"
)

var _ Consumer = (*RedisConsumer)(nil)

// RedisConsumer subscribes to <prefix><pattern> and, for requests carrying an
// id, publishes the reply on <prefix><pattern>.reply.
// The client is owned by the caller and is not closed here.
type RedisConsumer struct {
	client  *redis.Client
	prefix  string
	pattern string
}

func NewRedisConsumer(client *redis.Client, prefix, pattern string) *RedisConsumer {
	return &RedisConsumer{client: client, prefix: prefix, pattern: pattern}
}

func (c *RedisConsumer) Consume(ctx context.Context, respond Responder) error {
	channel := c.prefix + c.pattern
	sub := c.client.Subscribe(ctx, channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	logger := xslog.FromContext(ctx).With(xslog.Pattern(c.pattern))
	logger.InfoContext(ctx, "consuming bus requests")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, respond, []byte(m.Payload))
		}
	}
}

func (c *RedisConsumer) handle(ctx context.Context, respond Responder, payload []byte) {
	logger := xslog.FromContext(ctx).With(xslog.Pattern(c.pattern))

	req, err := Decode(payload)
	if err != nil {
		logger.ErrorContext(ctx, "dropping undecodable bus request", xslog.Error(err))
		return
	}

	data, err := respondTo(ctx, respond, req)
	if err != nil {
		logger.WarnContext(ctx, "bus request failed", xslog.Error(err))
	}
	if req.ID == "" || data == nil {
		return
	}

	channel := c.prefix + ReplyPattern(c.pattern)
	if err := c.client.Publish(ctx, channel, string(data)).Err(); err != nil {
		logger.ErrorContext(ctx, "failed to publish reply", xslog.Error(err))
	}
}

func (c *RedisConsumer) Close() error { return nil }
