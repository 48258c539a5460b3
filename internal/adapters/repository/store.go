// Package repository defines the batch store interface and its
// implementations.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/grader/internal/domain/model"
)

// Default list limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store persists batch state.
type Store interface {
	// Create stores a new batch. Returns ErrExists if the id is taken.
	Create(ctx context.Context, b *model.Batch) error

	// Save replaces the stored state of a batch, creating it when missing.
	Save(ctx context.Context, b *model.Batch) error

	// Get returns a copy of a batch.
	// Returns ErrNotFound if the batch is unknown.
	Get(ctx context.Context, id string) (*model.Batch, error)

	// List returns up to limit batches, newest first, without results.
	List(ctx context.Context, limit int) ([]*model.Batch, error)

	// Count returns the number of stored batches.
	Count(ctx context.Context) int

	Close() error
}

func checkLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultListLimit, nil
	case limit < 0 || limit > MaxListLimit:
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return limit, nil
}

// clone deep-copies b so stored state never aliases a running batch.
func clone(b *model.Batch) (*model.Batch, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	out := &model.Batch{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}

func summary(b *model.Batch) *model.Batch {
	s := *b
	s.Results = nil
	return &s
}
