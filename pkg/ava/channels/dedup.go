// Package channels holds transport-side helpers shared by chat channel
// implementations: inbound message deduplication and the inbound/outbound
// message shapes handed to the workflow.
package channels

import (
	"sync"
	"time"
)

// Dedup suppresses reprocessing of messages the provider delivers more than
// once. Keys are (sender, message id) pairs; entries expire after the TTL so
// the set stays bounded.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewDedup creates a guard with the given entry TTL (default 10 minutes).
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Dedup{seen: make(map[string]time.Time), ttl: ttl}
}

// Seen marks the (sender, messageID) pair and reports whether it was already
// present and unexpired.
func (d *Dedup) Seen(sender, messageID string) bool {
	key := sender + ":" + messageID
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}
