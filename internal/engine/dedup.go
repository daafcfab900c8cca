package engine

import (
	"sync"
	"time"
)

// Dedup suppresses duplicate execution notifications within a configurable
// time-to-live window. The ledger's PENDING guard already makes the terminal
// transition exactly-once; this keeps a replayed queue message from paging
// the user twice. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // orderID -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers an order ID a duplicate if
// it has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the orderID has been seen within the TTL
// window. If it has not been seen (or has expired), it is recorded and false
// is returned.
func (d *Dedup) IsDuplicate(orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[orderID]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[orderID] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. Called
// periodically by the processor to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
