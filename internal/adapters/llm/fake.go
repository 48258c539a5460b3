package llm

import (
	"context"
	"sync"

	"github.com/okian/grader/internal/domain/grading"
)

// Responder produces a scripted reply for a request.
type Responder func(ctx context.Context, req Request) (*Reply, error)

// FakeClient is an in-memory Client for tests and offline runs. It is safe
// for concurrent use.
type FakeClient struct {
	mu      sync.Mutex
	respond Responder
	calls   []Request
}

// NewFakeClient returns a client answering with respond.
func NewFakeClient(respond Responder) *FakeClient {
	return &FakeClient{respond: respond}
}

// NewStaticClient always answers text with the given usage.
func NewStaticClient(text string, usage grading.Usage) *FakeClient {
	return NewFakeClient(func(_ context.Context, req Request) (*Reply, error) {
		return &Reply{Text: text, Usage: usage, Model: req.Model}, nil
	})
}

// Name implements Client.
func (f *FakeClient) Name() string { return "Fake" }

// Close implements Client.
func (f *FakeClient) Close() error { return nil }

// Generate implements Client.
func (f *FakeClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return nil, ErrNoScript
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return respond(ctx, req)
}

// Calls returns a copy of every request seen so far.
func (f *FakeClient) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}
