// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/grader/internal/domain/grading"
)

// Strategy selects how a batch is graded.
type Strategy string

// Batch strategies.
const (
	StrategyVertical Strategy = "vertical" // one model call per submission
	StrategyCollage  Strategy = "collage"  // one model call per grid of crops
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s == StrategyVertical || s == StrategyCollage }

// Status is the lifecycle state of a batch.
type Status string

// Batch statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates will follow.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Page is one encoded page image.
type Page struct {
	Data []byte `json:"-"`
	MIME string `json:"mime,omitempty"`
}

// Submission is one student's scanned answer pages.
type Submission struct {
	Key   string `json:"key,omitempty"` // caller supplied; defaults to S%03d
	Pages []Page `json:"-"`
}

// StudentResult is the graded outcome of one submission.
type StudentResult struct {
	Index     int               `json:"index"`
	Key       string            `json:"key"`
	StudentID string            `json:"student_id"`
	Name      string            `json:"name"`
	Response  *grading.Response `json:"response"`
	Failed    bool              `json:"failed,omitempty"`
	Error     string            `json:"error,omitempty"`
	PageCount int               `json:"page_count"`
}

// Diagnostics are batch-level observations that did not stop the run.
type Diagnostics struct {
	TemplateFallback bool     `json:"template_fallback,omitempty"`
	Notes            []string `json:"notes,omitempty"`
}

// Batch is the persisted state of one batch run.
type Batch struct {
	ID             string          `json:"id"`
	Strategy       Strategy        `json:"strategy"`
	Status         Status          `json:"status"`
	Plan           string          `json:"plan,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Total          int             `json:"total"`
	Completed      int             `json:"completed"`
	Results        []StudentResult `json:"results,omitempty"`
	CostUSD        float64         `json:"cost_usd"`
	Diagnostics    Diagnostics     `json:"diagnostics"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summarize recomputes the batch cost from its results.
func (b *Batch) Summarize() {
	b.CostUSD = 0
	for _, r := range b.Results {
		if r.Response != nil {
			b.CostUSD += r.Response.CostUSD
		}
	}
}

// Progress is one step of a running batch, pushed to subscribers.
type Progress struct {
	BatchID   string `json:"batch_id"`
	Status    Status `json:"status"`
	Phase     string `json:"phase,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}
