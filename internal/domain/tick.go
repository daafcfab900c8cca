package domain

import (
	"math"
	"time"
)

// Tick is one price update from the exchange feed. Ticks are ephemeral and
// never persisted; only the latest value per symbol matters.
type Tick struct {
	Symbol     string
	Price      float64
	ObservedAt time.Time
}

// Valid reports whether the tick carries a usable symbol and price. Feeds
// occasionally deliver zero or garbage prices during maintenance windows;
// those ticks must never reach the matcher.
func (t Tick) Valid() bool {
	if t.Symbol == "" {
		return false
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return false
	}
	return true
}
