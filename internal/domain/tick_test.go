package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickValid(t *testing.T) {
	now := time.Now()

	valid := Tick{Symbol: "KRW-BTC", Price: 49_999_999, ObservedAt: now}
	assert.True(t, valid.Valid())

	cases := []struct {
		name string
		tick Tick
	}{
		{"empty symbol", Tick{Symbol: "", Price: 100, ObservedAt: now}},
		{"zero price", Tick{Symbol: "KRW-BTC", Price: 0, ObservedAt: now}},
		{"negative price", Tick{Symbol: "KRW-BTC", Price: -1, ObservedAt: now}},
		{"nan price", Tick{Symbol: "KRW-BTC", Price: math.NaN(), ObservedAt: now}},
		{"inf price", Tick{Symbol: "KRW-BTC", Price: math.Inf(1), ObservedAt: now}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, tc.tick.Valid())
		})
	}
}

func TestExecutionMessageAge(t *testing.T) {
	enqueued := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	msg := ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: enqueued.UnixMilli(),
	}

	assert.Equal(t, 3*time.Minute, msg.Age(enqueued.Add(3*time.Minute)))
	assert.Equal(t, time.Duration(0), msg.Age(enqueued))
}
