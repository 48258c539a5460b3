package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/metrics"
)

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	batches   map[string]*model.Batch
	retention int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{batches: make(map[string]*model.Batch)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, b *model.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryWriteLatency(time.Since(start)) }()

	c, err := clone(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, b.ID)
	}
	s.batches[b.ID] = c
	s.evict()
	metrics.UpdateRepositoryBatches(len(s.batches))
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, b *model.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryWriteLatency(time.Since(start)) }()

	c, err := clone(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = c
	s.evict()
	metrics.UpdateRepositoryBatches(len(s.batches))
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Batch, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(time.Since(start)) }()

	s.mu.RLock()
	b, ok := s.batches[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(b)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*model.Batch, error) {
	limit, err := checkLimit(limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*model.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, summary(b))
	}
	s.mu.RUnlock()

	sortNewest(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// evict must be called with s.mu held.
func (s *MemoryStore) evict() {
	if s.retention <= 0 || len(s.batches) <= s.retention {
		return
	}
	var done []*model.Batch
	for _, b := range s.batches {
		if b.Status.Terminal() {
			done = append(done, b)
		}
	}
	sortNewest(done)
	for i := len(done) - 1; i >= 0 && len(s.batches) > s.retention; i-- {
		delete(s.batches, done[i].ID)
	}
}

func sortNewest(bs []*model.Batch) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.After(bs[j].CreatedAt)
		}
		return bs[i].ID < bs[j].ID
	})
}
