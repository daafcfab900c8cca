package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the last-known price per symbol.
// Entries carry a short TTL; the cache is informational only and nothing
// correctness-critical reads from it.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OrderIndex holds the per-symbol, per-side sorted projections of PENDING
// reserved orders, keyed by trigger price.
type OrderIndex interface {
	// Add registers a projection. An entry exists only while its backing
	// order is PENDING.
	Add(ctx context.Context, ord IndexedOrder) error
	// Remove deletes a projection, e.g. on cancellation. Removing an absent
	// entry is not an error.
	Remove(ctx context.Context, symbol string, side OrderSide, orderID string) error
	// RangeSell returns order IDs on the sell side with trigger price in
	// [0, price]; RangeBuy returns IDs on the buy side with trigger price in
	// [price, +inf).
	RangeSell(ctx context.Context, symbol string, price float64) ([]string, error)
	RangeBuy(ctx context.Context, symbol string, price float64) ([]string, error)
	// Claim atomically removes the projection and enqueues an execution
	// message at the given price. It returns false when the projection was
	// already consumed by a concurrent claim or a cancellation, in which
	// case nothing is enqueued.
	Claim(ctx context.Context, symbol string, side OrderSide, orderID string, price float64) (bool, error)
}

// ExecutionQueue is the FIFO store decoupling tick-frequency match detection
// from the rate-limited execution path.
type ExecutionQueue interface {
	Push(ctx context.Context, msg ExecutionMessage) error
	// Pop removes and returns the oldest message. It returns ErrQueueEmpty
	// when there is nothing to drain.
	Pop(ctx context.Context) (ExecutionMessage, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// NotificationBus publishes raw payloads to a named channel. Delivery is
// best-effort; the gateway consuming the channel lives outside this system.
type NotificationBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
