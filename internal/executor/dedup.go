package executor

import (
	"sync"
	"time"
)

// Dedup absorbs rapid re-sends of the same signal fingerprint within a
// configurable time-to-live window, before the ledger is consulted. It is
// safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // fingerprint -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers a fingerprint a duplicate
// if it has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the fingerprint has been seen within the TTL
// window. If the fingerprint has not been seen (or has expired), it is
// recorded and false is returned.
func (d *Dedup) IsDuplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[fingerprint]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[fingerprint] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
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
