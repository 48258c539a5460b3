// Package llm adapts vision-capable language models to the grading engine.
// Cross-cutting concerns (retries, rate limiting, logging, metrics) are
// layered on a Client with Middleware.
package llm

import (
	"context"

	"github.com/okian/grader/internal/domain/grading"
)

// Call purposes, used for logs and metrics.
const (
	PurposeGrading  = "grading"
	PurposeGrid     = "grid"
	PurposeIdentity = "identity"
)

// Image is one encoded page or crop.
type Image struct {
	Data []byte
	MIME string
}

// Request is one structured generation call.
type Request struct {
	Model       string
	Purpose     string
	Prompt      string
	Images      []Image
	Schema      *grading.Schema
	Temperature float64
}

// Reply is the raw model text and its token usage.
type Reply struct {
	Text  string
	Usage grading.Usage
	Model string
}

// Client generates structured replies.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Reply, error)
	Close() error
}
