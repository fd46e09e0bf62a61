package webhook

import (
	"sync"
	"time"
)

// deliveryDeduper suppresses duplicate pipeline triggers. GitHub redelivers
// events on timeouts, and force-pushes can fire several synchronize events
// for the same head commit in quick succession.
type deliveryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func newDeliveryDeduper(ttl time.Duration) *deliveryDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &deliveryDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// markIfNew returns true if the key has not been seen recently.
// When it returns true, the key is recorded with an expiry timestamp.
func (d *deliveryDeduper) markIfNew(key string) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, k)
		}
	}

	if expiry, ok := d.entries[key]; ok && now.Before(expiry) {
		return false
	}

	d.entries[key] = now.Add(d.ttl)
	return true
}

// forget drops a key so a redelivery of the same event is processed
// again. Used when enqueueing failed after the key was marked.
func (d *deliveryDeduper) forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
}
