package dispatch

import (
	"sync"
	"time"
)

// dedup filters duplicate settlement deliveries. The results channel is
// at-least-once, so the same opportunity's result can arrive more than once;
// releasing capital twice is prevented by the ledger, but metrics must also
// be updated exactly once per settlement.
type dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// isDuplicate reports whether id was seen within the TTL window, recording it
// if not.
func (d *dedup) isDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[id]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// cleanup drops entries older than the TTL to bound memory.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
