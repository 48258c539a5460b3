package service

import (
	"sync"

	"github.com/okian/grader/internal/domain/model"
)

const defaultSubscriberBuffer = 64

// Hub fans batch progress out to subscribers. Slow subscribers miss
// intermediate steps rather than blocking the batch; a terminal step closes
// every subscription of its batch.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan model.Progress]struct{}
	buffer int
}

// NewHub returns a hub whose subscriptions buffer up to buffer steps.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: map[string]map[chan model.Progress]struct{}{}, buffer: buffer}
}

// Subscribe registers for the progress of batchID. The returned cancel is
// safe to call more than once and after the channel was closed.
func (h *Hub) Subscribe(batchID string) (<-chan model.Progress, func()) {
	ch := make(chan model.Progress, h.buffer)
	h.mu.Lock()
	set, ok := h.subs[batchID]
	if !ok {
		set = map[chan model.Progress]struct{}{}
		h.subs[batchID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.drop(batchID, ch)
	}
}

// drop must be called with mu held.
func (h *Hub) drop(batchID string, ch chan model.Progress) {
	set, ok := h.subs[batchID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, batchID)
	}
}

// Publish delivers p to every subscriber of its batch without blocking.
func (h *Hub) Publish(p model.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[p.BatchID] {
		select {
		case ch <- p:
		default:
			if p.Status.Terminal() {
				// Make room so the final step is never lost.
				select {
				case <-ch:
				default:
				}
				ch <- p
			}
		}
	}
	if p.Status.Terminal() {
		for ch := range h.subs[p.BatchID] {
			h.drop(p.BatchID, ch)
		}
	}
}

// Subscribers returns the number of open subscriptions of batchID.
func (h *Hub) Subscribers(batchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[batchID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			h.drop(id, ch)
		}
	}
}
