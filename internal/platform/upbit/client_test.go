package upbit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

func TestHandleFrame_DecodesSimpleTicker(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)

	var got domain.Tick
	c.OnTick(func(tick domain.Tick) { got = tick })

	c.handleFrame([]byte(`{"ty":"ticker","cd":"KRW-BTC","tp":49999999,"tms":1700000000123}`))

	assert.Equal(t, "KRW-BTC", got.Symbol)
	assert.Equal(t, float64(49_999_999), got.Price)
	assert.Equal(t, time.UnixMilli(1700000000123), got.ObservedAt)
}

func TestHandleFrame_MissingTimestampFallsBackToNow(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)

	var got domain.Tick
	c.OnTick(func(tick domain.Tick) { got = tick })

	before := time.Now()
	c.handleFrame([]byte(`{"ty":"ticker","cd":"KRW-ETH","tp":3500000}`))
	after := time.Now()

	require.Equal(t, "KRW-ETH", got.Symbol)
	assert.False(t, got.ObservedAt.Before(before))
	assert.False(t, got.ObservedAt.After(after))
}

func TestHandleFrame_DropsNonTickerAndGarbage(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)

	calls := 0
	c.OnTick(func(domain.Tick) { calls++ })

	c.handleFrame([]byte(`{"ty":"trade","cd":"KRW-BTC","tp":1}`))
	c.handleFrame([]byte(`{"ty":"ticker","tp":1}`)) // no code
	c.handleFrame([]byte(`not json`))
	c.handleFrame([]byte(`{}`))

	assert.Zero(t, calls)
}

func TestHandleFrame_NoHandlerIsSafe(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)
	assert.NotPanics(t, func() {
		c.handleFrame([]byte(`{"ty":"ticker","cd":"KRW-BTC","tp":1}`))
	})
}

func TestSubscription_MarshalsAsOrderedArray(t *testing.T) {
	req := subscription{
		ticketBlock{Ticket: "session-1"},
		typeBlock{Type: "ticker", Codes: []string{"KRW-BTC", "KRW-ETH"}},
		formatBlock{Format: "SIMPLE"},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var blocks []map[string]any
	require.NoError(t, json.Unmarshal(data, &blocks))
	require.Len(t, blocks, 3)

	assert.Equal(t, "session-1", blocks[0]["ticket"])
	assert.Equal(t, "ticker", blocks[1]["type"])
	assert.Equal(t, []any{"KRW-BTC", "KRW-ETH"}, blocks[1]["codes"])
	assert.Equal(t, "SIMPLE", blocks[2]["format"])
}

func TestSubscribe_RequiresConnection(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)
	err := c.Subscribe([]string{"KRW-BTC"})
	assert.Error(t, err)
}

func TestHealthy_FalseWhenNeverConnected(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)
	assert.False(t, c.Healthy(time.Minute))
}

func TestClose_IsIdempotentAndBlocksRedial(t *testing.T) {
	c := NewClient("wss://example.invalid/ws", 0)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.Dial(context.Background())
	assert.ErrorIs(t, err, domain.ErrWSDisconnect)
}
