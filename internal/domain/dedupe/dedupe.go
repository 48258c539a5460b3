// Package dedupe tracks batch idempotency keys.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50000

// Deduper maps client idempotency keys to the batch they created.
type Deduper interface {
	// Claim atomically records key for batchID unless it is already known.
	// It returns the owning batch id and whether the key was seen before.
	Claim(ctx context.Context, key, batchID string) (owner string, seen bool)

	// Release forgets key so a rejected submission can be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

// lruDeduper keeps the most recently claimed keys; the oldest are evicted
// once maxSize is reached. A non-positive maxSize disables eviction.
type lruDeduper struct {
	mu      sync.Mutex
	maxSize int
	bounded *lru.Cache[string, string]
	all     map[string]string
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		c, err := lru.New[string, string](d.maxSize)
		if err == nil {
			d.bounded = c
			return d
		}
	}
	d.all = make(map[string]string)
	return d
}

// Claim implements Deduper.
func (d *lruDeduper) Claim(_ context.Context, key, batchID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		if owner, ok := d.bounded.Get(key); ok {
			return owner, true
		}
		d.bounded.Add(key, batchID)
		return batchID, false
	}
	if owner, ok := d.all[key]; ok {
		return owner, true
	}
	d.all[key] = batchID
	return batchID, false
}

// Release implements Deduper.
func (d *lruDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		d.bounded.Remove(key)
		return
	}
	delete(d.all, key)
}

// Size returns the current number of entries in the deduper.
func (d *lruDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bounded != nil {
		return int64(d.bounded.Len())
	}
	return int64(len(d.all))
}
