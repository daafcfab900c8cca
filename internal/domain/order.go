package domain

import "time"

// OrderSide indicates whether a reserved order buys or sells at its trigger.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks the reserved-order lifecycle. The engine only ever
// performs the PENDING -> COMPLETED transition; cancellation comes from the
// order-management path.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the durable reserved order held in the ledger.
type Order struct {
	ID             string
	UserID         string
	Symbol         string
	Side           OrderSide
	TriggerPrice   float64
	Amount         float64
	Status         OrderStatus
	ExecutionPrice *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IndexedOrder is the lightweight projection of a PENDING order that lives in
// the order index. It exists iff the backing order is still PENDING.
type IndexedOrder struct {
	OrderID      string
	Symbol       string
	Side         OrderSide
	TriggerPrice float64
}

// ExecutionMessage is the unit of work flowing through the execution queue.
// Messages are disposable: a lost message is not retried.
type ExecutionMessage struct {
	OrderID          string  `json:"order_id"`
	ExecutionPrice   float64 `json:"execution_price"`
	EnqueuedAtMillis int64   `json:"enqueued_at_ms"`
}

// Age returns how long the message has been waiting relative to now.
func (m ExecutionMessage) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(m.EnqueuedAtMillis))
}

// ExecutionNotice is the payload pushed to the owning user after a reserved
// order completes.
type ExecutionNotice struct {
	OrderID    string    `json:"order_id"`
	OrderType  OrderSide `json:"order_type"`
	Symbol     string    `json:"symbol"`
	Amount     float64   `json:"amount"`
	TradePrice float64   `json:"trade_price"`
	ExecutedAt time.Time `json:"executed_at"`
}
