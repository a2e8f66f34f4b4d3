// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Deduper records seen ids so that a side effect runs at most once per id.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) (bool, error)

	// Unrecord forgets id so a later attempt is not treated as a duplicate.
	Unrecord(ctx context.Context, id string) error

	Close() error
}

type entry struct {
	id      string
	expires time.Time
}

// InMemoryDeduper implements Deduper with a bounded map. When full, the oldest
// recorded id is evicted. Entries older than the TTL count as unseen.
type InMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int        // <= 0 means unbounded
	ttl     time.Duration
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{
		maxSize: 10_000,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneExpired(now)

	if el, ok := d.seen[id]; ok {
		if !d.expired(el.Value.(*entry), now) {
			return true, nil
		}
		d.remove(el)
	}

	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			d.remove(d.order.Front())
		}
	}

	e := &entry{id: id}
	if d.ttl > 0 {
		e.expires = now.Add(d.ttl)
	}
	d.seen[id] = d.order.PushBack(e)
	d.size.Add(1)
	return false, nil
}

// Unrecord removes an id from the seen set.
func (d *InMemoryDeduper) Unrecord(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.remove(el)
	}
	return nil
}

// Size returns the current number of tracked ids.
func (d *InMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Close is a no-op for the in-memory implementation.
func (d *InMemoryDeduper) Close() error { return nil }

// pruneExpired drops expired entries from the front. Entries are appended in
// time order with a fixed TTL, so expiry order matches list order.
// Must be called with d.mu held.
func (d *InMemoryDeduper) pruneExpired(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for el := d.order.Front(); el != nil && d.expired(el.Value.(*entry), now); el = d.order.Front() {
		d.remove(el)
	}
}

func (d *InMemoryDeduper) expired(e *entry, now time.Time) bool {
	return d.ttl > 0 && !now.Before(e.expires)
}

// Must be called with d.mu held.
func (d *InMemoryDeduper) remove(el *list.Element) {
	e := d.order.Remove(el).(*entry)
	delete(d.seen, e.id)
	d.size.Add(-1)
}

var _ Deduper = (*InMemoryDeduper)(nil)
