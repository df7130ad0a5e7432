package webhook

import (
	"sync"
	"time"
)

// Deduplicator drops repeat deliveries of the same (request id, status)
// pair inside a short window. The provider retries webhooks on slow
// responses, and media materialization makes our handler slow.
type Deduplicator struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduplicator builds a Deduplicator with the given window.
func NewDeduplicator(ttl time.Duration, opts ...func(*Deduplicator)) *Deduplicator {
	d := &Deduplicator{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithDedupClock overrides the time source. Used in tests.
func WithDedupClock(now func() time.Time) func(*Deduplicator) {
	return func(d *Deduplicator) { d.now = now }
}

// ShouldProcess records the delivery and reports whether it is the
// first one for this (request id, status) pair within the window.
// Entries older than the window are purged opportunistically.
func (d *Deduplicator) ShouldProcess(requestID, status string) bool {
	key := requestID + "-" + status
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return false
	}
	d.seen[key] = now

	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	return true
}
