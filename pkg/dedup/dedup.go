// Package dedup remembers recently seen message keys so QoS 1 redeliveries are
// processed once.
package dedup

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Deduper struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	return NewWithClock(ttl, max, clockwork.NewRealClock())
}

func NewWithClock(ttl time.Duration, max int, clock clockwork.Clock) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{clock: clock, ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// ShouldProcess reports whether id was not seen within the TTL, and records it.
// An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		for k, v := range d.seen {
			if !now.Before(v) {
				delete(d.seen, k)
			}
		}
		// still full of live keys: drop arbitrary ones, never the one just added
		for k := range d.seen {
			if len(d.seen) <= d.max {
				break
			}
			if k != id {
				delete(d.seen, k)
			}
		}
	}
	return true
}

// Len is the number of keys currently remembered.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
