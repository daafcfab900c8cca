package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []domain.ExecutionMessage
}

func (q *fakeQueue) Push(_ context.Context, msg domain.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) Pop(_ context.Context) (domain.ExecutionMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return domain.ExecutionMessage{}, domain.ErrQueueEmpty
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, nil
}

var _ domain.ExecutionQueue = (*fakeQueue)(nil)

type fakeLedger struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	claimErr error
	claims   int
}

func newFakeLedger(orders ...domain.Order) *fakeLedger {
	l := &fakeLedger{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		l.orders[o.ID] = o
	}
	return l
}

func (l *fakeLedger) Create(_ context.Context, o domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[o.ID] = o
	return nil
}

func (l *fakeLedger) GetByID(_ context.Context, id string) (domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (l *fakeLedger) ListPendingBySymbol(_ context.Context, symbol string) ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Order
	for _, o := range l.orders {
		if o.Symbol == symbol && o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l *fakeLedger) ClaimAndComplete(_ context.Context, id string, execPrice float64, at time.Time) (domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claims++
	if l.claimErr != nil {
		return domain.Order{}, l.claimErr
	}
	o, ok := l.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Status = domain.OrderStatusCompleted
	o.ExecutionPrice = &execPrice
	o.UpdatedAt = at
	l.orders[id] = o
	return o, nil
}

func (l *fakeLedger) CancelPending(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return domain.ErrNotFound
	}
	o.Status = domain.OrderStatusCancelled
	l.orders[id] = o
	return nil
}

var _ domain.OrderLedger = (*fakeLedger)(nil)

type fakeNotifier struct {
	mu      sync.Mutex
	notices []domain.ExecutionNotice
	users   []string
	fail    bool
}

func (n *fakeNotifier) NotifyExecution(_ context.Context, userID string, notice domain.ExecutionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("push gateway down")
	}
	n.users = append(n.users, userID)
	n.notices = append(n.notices, notice)
	return nil
}

func newTestProcessor(q domain.ExecutionQueue, l domain.OrderLedger, n ExecutionNotifier) *Processor {
	return NewProcessor(q, l, n, nil, 100*time.Millisecond, 5*time.Minute, testLogger())
}

func pendingOrder(id string) domain.Order {
	return domain.Order{
		ID:           id,
		UserID:       "user-7",
		Symbol:       "KRW-BTC",
		Side:         domain.OrderSideSell,
		TriggerPrice: 50_000_000,
		Amount:       0.5,
		Status:       domain.OrderStatusPending,
	}
}

func TestDrain_CompletesPendingOrderAndNotifies(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger(pendingOrder("42"))
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	require.NoError(t, queue.Push(context.Background(), domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().UnixMilli(),
	}))

	p.drain(context.Background())

	ord, err := ledger.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, ord.Status)
	require.NotNil(t, ord.ExecutionPrice)
	assert.Equal(t, float64(49_999_999), *ord.ExecutionPrice)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "user-7", notifier.users[0])
	assert.Equal(t, "KRW-BTC", notifier.notices[0].Symbol)
	assert.Equal(t, domain.OrderSideSell, notifier.notices[0].OrderType)
	assert.Equal(t, float64(49_999_999), notifier.notices[0].TradePrice)
	assert.Equal(t, 0.5, notifier.notices[0].Amount)
}

func TestDrain_EmptyQueueIsNoop(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	p.drain(context.Background())

	assert.Zero(t, ledger.claims)
	assert.Empty(t, notifier.notices)
}

func TestDrain_StaleMessageDroppedWithoutSideEffects(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger(pendingOrder("42"))
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	require.NoError(t, queue.Push(context.Background(), domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().Add(-6 * time.Minute).UnixMilli(),
	}))

	p.drain(context.Background())

	// The order must remain untouched regardless of its state.
	ord, err := ledger.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, ord.Status)
	assert.Zero(t, ledger.claims)
	assert.Empty(t, notifier.notices)
}

func TestDrain_NonPendingOrderIsNoop(t *testing.T) {
	cancelled := pendingOrder("42")
	cancelled.Status = domain.OrderStatusCancelled

	queue := &fakeQueue{}
	ledger := newFakeLedger(cancelled)
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	require.NoError(t, queue.Push(context.Background(), domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().UnixMilli(),
	}))

	p.drain(context.Background())

	ord, err := ledger.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, ord.Status)
	assert.Empty(t, notifier.notices)
}

func TestDrain_DuplicateMessageCompletesOnceNotifiesOnce(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger(pendingOrder("42"))
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	msg := domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().UnixMilli(),
	}
	require.NoError(t, queue.Push(context.Background(), msg))
	require.NoError(t, queue.Push(context.Background(), msg))

	p.drain(context.Background())
	p.drain(context.Background())

	ord, err := ledger.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, ord.Status)
	assert.Len(t, notifier.notices, 1)
}

func TestDrain_PersistFailureDropsMessage(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger(pendingOrder("42"))
	ledger.claimErr = errors.New("connection reset")
	notifier := &fakeNotifier{}
	p := newTestProcessor(queue, ledger, notifier)

	require.NoError(t, queue.Push(context.Background(), domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().UnixMilli(),
	}))

	p.drain(context.Background())

	// At-most-once: the message is gone and nothing was notified.
	_, err := queue.Pop(context.Background())
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)
	assert.Empty(t, notifier.notices)
}

func TestDrain_NotificationFailureDoesNotAffectExecution(t *testing.T) {
	queue := &fakeQueue{}
	ledger := newFakeLedger(pendingOrder("42"))
	notifier := &fakeNotifier{fail: true}
	p := newTestProcessor(queue, ledger, notifier)

	require.NoError(t, queue.Push(context.Background(), domain.ExecutionMessage{
		OrderID:          "42",
		ExecutionPrice:   49_999_999,
		EnqueuedAtMillis: time.Now().UnixMilli(),
	}))

	p.drain(context.Background())

	ord, err := ledger.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, ord.Status)
}
