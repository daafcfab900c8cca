package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junhyuklee/mocktrade/internal/domain"
	"github.com/junhyuklee/mocktrade/internal/engine"
	"github.com/junhyuklee/mocktrade/internal/platform/upbit"
)

type fakePrices struct {
	mu    sync.Mutex
	saved map[string]float64
}

func newFakePrices() *fakePrices {
	return &fakePrices{saved: make(map[string]float64)}
}

func (p *fakePrices) SetPrice(_ context.Context, symbol string, price float64, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[symbol] = price
	return nil
}

func (p *fakePrices) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.saved[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return v, time.Now(), nil
}

func (p *fakePrices) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if v, _, err := p.GetPrice(context.Background(), s); err == nil {
			out[s] = v
		}
	}
	return out, nil
}

func (p *fakePrices) get(symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.saved[symbol]
	return v, ok
}

var _ domain.PriceCache = (*fakePrices)(nil)

// claimIndex is a minimal order index that records claims.
type claimIndex struct {
	mu     sync.Mutex
	orders map[string]domain.IndexedOrder
	claims []string
}

func newClaimIndex() *claimIndex {
	return &claimIndex{orders: make(map[string]domain.IndexedOrder)}
}

func (c *claimIndex) Add(_ context.Context, ord domain.IndexedOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[ord.OrderID] = ord
	return nil
}

func (c *claimIndex) Remove(_ context.Context, _ string, _ domain.OrderSide, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
	return nil
}

func (c *claimIndex) RangeSell(_ context.Context, symbol string, price float64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, o := range c.orders {
		if o.Symbol == symbol && o.Side == domain.OrderSideSell && o.TriggerPrice <= price {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *claimIndex) RangeBuy(_ context.Context, symbol string, price float64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, o := range c.orders {
		if o.Symbol == symbol && o.Side == domain.OrderSideBuy && o.TriggerPrice >= price {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *claimIndex) Claim(_ context.Context, _ string, _ domain.OrderSide, orderID string, _ float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.orders[orderID]; !ok {
		return false, nil
	}
	delete(c.orders, orderID)
	c.claims = append(c.claims, orderID)
	return true, nil
}

func (c *claimIndex) claimed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.claims...)
}

var _ domain.OrderIndex = (*claimIndex)(nil)

type staticSymbols struct{ codes []string }

func (s staticSymbols) ActiveSymbols(context.Context) ([]string, error) {
	return s.codes, nil
}

func newTestIngestor(prices domain.PriceCache, idx domain.OrderIndex) *Ingestor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matcher := engine.NewMatcher(idx, logger)
	client := upbit.NewClient("wss://example.invalid/ws", time.Second)
	return NewIngestor(client, prices, staticSymbols{codes: []string{"KRW-BTC"}}, matcher, Config{}, logger)
}

func TestReconnectDelay_DoublesPerFailureUpToCap(t *testing.T) {
	initial := time.Second
	max := 5 * time.Minute

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{6, 64 * time.Second},
		{7, 64 * time.Second},  // exponent capped at 6
		{50, 64 * time.Second}, // no overflow
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reconnectDelay(initial, max, tt.attempts),
			"attempts=%d", tt.attempts)
	}
}

func TestReconnectDelay_ClampedToMax(t *testing.T) {
	assert.Equal(t, 10*time.Second, reconnectDelay(time.Second, 10*time.Second, 5))
	assert.Equal(t, 10*time.Second, reconnectDelay(time.Second, 10*time.Second, 100))
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)

	next, err := nextOccurrence("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), next)

	// Already past today's slot: roll over to tomorrow.
	next, err = nextOccurrence("08:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC), next)

	_, err = nextOccurrence("25:99", now)
	assert.Error(t, err)
}

func TestOnTick_InvalidPriceIgnored(t *testing.T) {
	prices := newFakePrices()
	idx := newClaimIndex()
	ing := newTestIngestor(prices, idx)

	require.NoError(t, idx.Add(context.Background(), domain.IndexedOrder{
		OrderID: "42", Symbol: "KRW-BTC", Side: domain.OrderSideSell, TriggerPrice: 100,
	}))

	ing.onTick(domain.Tick{Symbol: "KRW-BTC", Price: 0, ObservedAt: time.Now()})
	ing.onTick(domain.Tick{Symbol: "KRW-BTC", Price: -1, ObservedAt: time.Now()})
	ing.onTick(domain.Tick{Symbol: "", Price: 100, ObservedAt: time.Now()})

	// No cache write and no index scan happened.
	_, cached := prices.get("KRW-BTC")
	assert.False(t, cached)
	assert.Empty(t, idx.claimed())
}

func TestOnTick_CachesPriceAndDispatchesMatcher(t *testing.T) {
	prices := newFakePrices()
	idx := newClaimIndex()
	ing := newTestIngestor(prices, idx)

	require.NoError(t, idx.Add(context.Background(), domain.IndexedOrder{
		OrderID: "42", Symbol: "KRW-BTC", Side: domain.OrderSideSell, TriggerPrice: 49_999_999,
	}))

	ing.onTick(domain.Tick{Symbol: "KRW-BTC", Price: 49_999_999, ObservedAt: time.Now()})

	v, cached := prices.get("KRW-BTC")
	assert.True(t, cached)
	assert.Equal(t, float64(49_999_999), v)

	// Evaluation is asynchronous on the bounded pool.
	require.Eventually(t, func() bool {
		return len(idx.claimed()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"42"}, idx.claimed())
}

func TestOnTick_ShortCircuitsAfterShutdown(t *testing.T) {
	prices := newFakePrices()
	idx := newClaimIndex()
	ing := newTestIngestor(prices, idx)

	require.NoError(t, idx.Add(context.Background(), domain.IndexedOrder{
		OrderID: "42", Symbol: "KRW-BTC", Side: domain.OrderSideSell, TriggerPrice: 100,
	}))

	ing.Shutdown()
	ing.Shutdown() // idempotent

	ing.onTick(domain.Tick{Symbol: "KRW-BTC", Price: 1_000, ObservedAt: time.Now()})

	time.Sleep(20 * time.Millisecond)
	_, cached := prices.get("KRW-BTC")
	assert.False(t, cached)
	assert.Empty(t, idx.claimed())
}

func TestScheduleReconnect_NoopAfterShutdown(t *testing.T) {
	ing := newTestIngestor(newFakePrices(), newClaimIndex())

	ing.Shutdown()
	ing.scheduleReconnect()

	ing.mu.Lock()
	defer ing.mu.Unlock()
	assert.False(t, ing.reconnecting)
	assert.Zero(t, ing.attempts)
}

func TestScheduleReconnect_SingleInFlight(t *testing.T) {
	ing := newTestIngestor(newFakePrices(), newClaimIndex())
	// Long delay keeps the first attempt pending while the second arrives.
	ing.initialDelay = time.Hour
	ing.maxDelay = 2 * time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ing.runCtx = ctx

	ing.scheduleReconnect()
	ing.scheduleReconnect()

	ing.mu.Lock()
	defer ing.mu.Unlock()
	assert.True(t, ing.reconnecting)
	assert.Equal(t, 1, ing.attempts)
}
