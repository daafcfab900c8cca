package domain

import (
	"context"
	"time"
)

// OrderLedger is the durable store of reserved orders.
type OrderLedger interface {
	Create(ctx context.Context, ord Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListPendingBySymbol(ctx context.Context, symbol string) ([]Order, error)
	// ClaimAndComplete transitions the order PENDING -> COMPLETED inside a
	// transaction, recording the execution price. It returns ErrNotFound when
	// no PENDING row exists, meaning the order was already resolved elsewhere
	// (executed or cancelled) and the caller should treat the claim as a
	// no-op.
	ClaimAndComplete(ctx context.Context, id string, execPrice float64, at time.Time) (Order, error)
	// CancelPending transitions PENDING -> CANCELLED. ErrNotFound when the
	// order is absent or no longer PENDING.
	CancelPending(ctx context.Context, id string) error
}

// SymbolStore supplies the current subscribable symbol set. Consulted at
// startup and once daily before resubscription.
type SymbolStore interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
}
