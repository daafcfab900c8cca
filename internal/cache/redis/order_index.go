package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/redis/go-redis/v9"
)

// claimLua atomically consumes an indexed order: the live snapshot must still
// exist (it is deleted on cancellation and by competing claims), the member
// must still be in the sorted set, and only then is the execution message
// pushed. Two ticks racing for the same order therefore enqueue exactly once.
// A snapshot-less member is an orphan left by a crashed cancellation; it is
// removed without enqueueing.
const claimLua = `
if redis.call('EXISTS', KEYS[2]) == 0 then
    redis.call('ZREM', KEYS[1], ARGV[1])
    return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
    return 0
end
redis.call('DEL', KEYS[2])
redis.call('RPUSH', KEYS[3], ARGV[2])
return 1
`

// OrderIndex implements domain.OrderIndex using one sorted set per symbol and
// side ("reserved:{symbol}:buy|sell", member = order ID, score = trigger
// price) plus a live snapshot hash per order ("reserved:order:{id}").
type OrderIndex struct {
	rdb      *redis.Client
	queueKey string
	claimSc  *redis.Script
	now      func() time.Time
}

// NewOrderIndex creates an OrderIndex backed by the given Client. Claimed
// orders are pushed onto the Redis list identified by queueKey, which must be
// the same key the execution queue drains.
func NewOrderIndex(c *Client, queueKey string) *OrderIndex {
	return &OrderIndex{
		rdb:      c.Underlying(),
		queueKey: queueKey,
		claimSc:  redis.NewScript(claimLua),
		now:      time.Now,
	}
}

func indexKey(symbol string, side domain.OrderSide) string {
	return "reserved:" + symbol + ":" + strings.ToLower(string(side))
}

func snapshotKey(orderID string) string {
	return "reserved:order:" + orderID
}

// Add registers the projection of a PENDING order: the sorted-set member and
// the live snapshot are written in one transaction.
func (oi *OrderIndex) Add(ctx context.Context, ord domain.IndexedOrder) error {
	pipe := oi.rdb.TxPipeline()
	pipe.ZAdd(ctx, indexKey(ord.Symbol, ord.Side), redis.Z{
		Score:  ord.TriggerPrice,
		Member: ord.OrderID,
	})
	pipe.HSet(ctx, snapshotKey(ord.OrderID), map[string]interface{}{
		"symbol":        ord.Symbol,
		"side":          string(ord.Side),
		"trigger_price": strconv.FormatFloat(ord.TriggerPrice, 'f', -1, 64),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: index order %s: %w", ord.OrderID, err)
	}
	return nil
}

// Remove deletes the projection, snapshot first so a concurrent claim that
// has already passed the snapshot check cannot resurrect it. Removing an
// absent entry is a no-op.
func (oi *OrderIndex) Remove(ctx context.Context, symbol string, side domain.OrderSide, orderID string) error {
	pipe := oi.rdb.TxPipeline()
	pipe.Del(ctx, snapshotKey(orderID))
	pipe.ZRem(ctx, indexKey(symbol, side), orderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove order %s: %w", orderID, err)
	}
	return nil
}

// RangeSell returns sell-side order IDs with trigger price in [0, price].
func (oi *OrderIndex) RangeSell(ctx context.Context, symbol string, price float64) ([]string, error) {
	ids, err := oi.rdb.ZRangeByScore(ctx, indexKey(symbol, domain.OrderSideSell), &redis.ZRangeBy{
		Min: "0",
		Max: formatScore(price),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range sell %s: %w", symbol, err)
	}
	return ids, nil
}

// RangeBuy returns buy-side order IDs with trigger price in [price, +inf).
func (oi *OrderIndex) RangeBuy(ctx context.Context, symbol string, price float64) ([]string, error) {
	ids, err := oi.rdb.ZRangeByScore(ctx, indexKey(symbol, domain.OrderSideBuy), &redis.ZRangeBy{
		Min: formatScore(price),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range buy %s: %w", symbol, err)
	}
	return ids, nil
}

// Claim atomically removes the projection and enqueues an execution message
// at the given price. It returns false when another claim or a cancellation
// got there first.
func (oi *OrderIndex) Claim(ctx context.Context, symbol string, side domain.OrderSide, orderID string, price float64) (bool, error) {
	msg := domain.ExecutionMessage{
		OrderID:          orderID,
		ExecutionPrice:   price,
		EnqueuedAtMillis: oi.now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("redis: marshal execution message %s: %w", orderID, err)
	}

	keys := []string{indexKey(symbol, side), snapshotKey(orderID), oi.queueKey}
	n, err := oi.claimSc.Run(ctx, oi.rdb, keys, orderID, payload).Int()
	if err != nil {
		return false, fmt.Errorf("redis: claim order %s: %w", orderID, err)
	}
	return n == 1, nil
}

func formatScore(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// Compile-time interface check.
var _ domain.OrderIndex = (*OrderIndex)(nil)
