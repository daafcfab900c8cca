package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ExecutionQueue implements domain.ExecutionQueue as a Redis list. Producers
// RPUSH serialized messages (the order index claim script does the same) and
// the processor LPOPs them, giving FIFO order.
type ExecutionQueue struct {
	rdb *redis.Client
	key string
}

// NewExecutionQueue creates an ExecutionQueue draining the list at key.
func NewExecutionQueue(c *Client, key string) *ExecutionQueue {
	return &ExecutionQueue{rdb: c.Underlying(), key: key}
}

// Key returns the Redis list key the queue drains.
func (q *ExecutionQueue) Key() string {
	return q.key
}

// Push serializes the message and appends it to the tail of the list.
func (q *ExecutionQueue) Push(ctx context.Context, msg domain.ExecutionMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal execution message %s: %w", msg.OrderID, err)
	}
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis: push execution message %s: %w", msg.OrderID, err)
	}
	return nil
}

// Pop removes and returns the oldest message. It returns domain.ErrQueueEmpty
// when the list is empty.
func (q *ExecutionQueue) Pop(ctx context.Context) (domain.ExecutionMessage, error) {
	raw, err := q.rdb.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ExecutionMessage{}, domain.ErrQueueEmpty
	}
	if err != nil {
		return domain.ExecutionMessage{}, fmt.Errorf("redis: pop execution message: %w", err)
	}

	var msg domain.ExecutionMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return domain.ExecutionMessage{}, fmt.Errorf("redis: decode execution message: %w", err)
	}
	return msg, nil
}

// Compile-time interface check.
var _ domain.ExecutionQueue = (*ExecutionQueue)(nil)
