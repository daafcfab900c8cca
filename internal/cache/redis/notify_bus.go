package redis

import (
	"context"
	"fmt"

	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NotifyBus implements domain.NotificationBus using Redis Pub/Sub. The
// websocket gateway that fronts user sessions subscribes to the per-user
// channels; if nobody is listening the message evaporates, which is the
// intended best-effort semantic.
type NotifyBus struct {
	rdb *redis.Client
}

// NewNotifyBus creates a NotifyBus backed by the given Client.
func NewNotifyBus(c *Client) *NotifyBus {
	return &NotifyBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (nb *NotifyBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := nb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.NotificationBus = (*NotifyBus)(nil)
