package rediscache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus implements port.InvalidationBus over Redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewBus uses the default invalidation channel.
func NewBus(client *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{client: client, channel: invalidateChannel, logger: logger}
}

// Publish broadcasts key. An empty key asks every replica to clear its
// whole constants cache.
func (b *Bus) Publish(ctx context.Context, key string) error {
	if err := b.client.Publish(ctx, b.channel, key).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription, then delivers every message to fn
// on a background goroutine until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, fn func(key string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.logger.Debug("redis: invalidation received", zap.String("key", msg.Payload))
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
