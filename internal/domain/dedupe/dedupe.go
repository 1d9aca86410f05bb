// Package dedupe tracks delivery keys so the notification queue holds at
// most one entry per emergency and recipient.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records delivery keys to suppress duplicate fan-out. A key is the
// (emergency, recipient) pair a queued notification belongs to.
type Deduper interface {
	// SeenAndRecord atomically checks whether key is tracked and records it
	// if not. Returns true when the key was already tracked.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord drops a key so a later emergency can reach the same recipient
	// again. Called when the tracked notification leaves the queue.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// entry is a link in the insertion-ordered list used for bounded eviction.
type entry struct {
	key  string
	next *entry
}

func (e *entry) reset() {
	e.key = ""
	e.next = nil
}

// inMemoryDeduper keeps tracked keys in a map. In bounded mode it threads
// entries through a linked list so the oldest key can be evicted once the
// cap is hit; unbounded mode skips the list entirely.
type inMemoryDeduper struct {
	mu        sync.Mutex
	tracked   map[string]*entry // key -> list entry, nil values in unbounded mode
	head      *entry            // most recently recorded key
	maxSize   int               // 0 or negative means unbounded
	size      atomic.Int64
	entryPool sync.Pool
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxTrackedKeys,
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	d.tracked = make(map[string]*entry)
	if d.maxSize > 0 {
		d.entryPool = sync.Pool{
			New: func() interface{} {
				return &entry{}
			},
		}
	}

	return d
}

// SeenAndRecord atomically checks whether key is tracked and records it if
// not. Returns true when the key was already tracked.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tracked[key]; exists {
		return true
	}

	if d.maxSize > 0 {
		if len(d.tracked) >= d.maxSize {
			d.evictOldest()
		}

		e := d.entryPool.Get().(*entry)
		e.key = key
		e.next = d.head

		d.head = e
		d.tracked[key] = e
	} else {
		d.tracked[key] = nil
	}
	d.size.Add(1)
	return false
}

// Unrecord drops a key from the tracked set.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, exists := d.tracked[key]
	if !exists {
		return
	}
	delete(d.tracked, key)
	d.size.Add(-1)

	if d.maxSize <= 0 {
		return
	}

	// Unlink from the eviction list.
	if d.head == e {
		d.head = e.next
	} else {
		cur := d.head
		for cur != nil && cur.next != e {
			cur = cur.next
		}
		if cur != nil {
			cur.next = e.next
		}
	}
	e.reset()
	d.entryPool.Put(e)
}

// evictOldest removes the tail of the list, the least recently recorded key.
// Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if d.head == nil {
		return
	}

	var prev *entry
	cur := d.head
	for cur.next != nil {
		prev = cur
		cur = cur.next
	}

	if prev == nil {
		d.head = nil
	} else {
		prev.next = nil
	}
	delete(d.tracked, cur.key)
	cur.reset()
	d.entryPool.Put(cur)
	d.size.Add(-1)
}

// Size returns the number of tracked keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
