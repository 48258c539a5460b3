package batchclient

import (
	"time"

	"github.com/okian/grader/internal/domain/model"
)

// Config holds configuration for one batch run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Dir            string        // One sub-directory of page images per student
	RubricFile     string        // Rubric in JSON or YAML
	Strategy       string        // vertical or collage
	Plan           string        // Selects the per-batch worker limit
	Mode           string        // Strict or Standard
	Subject        string        // Prompt profile
	Language       string        // Comment language
	IdempotencyKey string        // Optional; replays return the first batch
	Workers        int           // Concurrent file readers
	Timeout        time.Duration // HTTP request timeout
	Wait           time.Duration // How long to wait for the batch to finish
	PollInterval   time.Duration // Status polling interval when streaming is unavailable
	OutputFile     string        // Results file
	LogFile        string        // Log file for run output
	Verbose        bool          // Enable verbose logging
}

// Page is one encoded page image as the API expects it.
type Page struct {
	Data string `json:"data"`
	MIME string `json:"mime,omitempty"`
}

// Submission is one student's pages as the API expects it.
type Submission struct {
	Key   string `json:"key"`
	Pages []Page `json:"pages"`
}

// Settings mirrors the API grading settings.
type Settings struct {
	Mode     string `json:"mode,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Language string `json:"language,omitempty"`
}

// SubmitRequest is the POST /batches body.
type SubmitRequest struct {
	Strategy       string       `json:"strategy,omitempty"`
	Submissions    []Submission `json:"submissions"`
	Rubric         string       `json:"rubric"`
	Settings       Settings     `json:"settings"`
	Plan           string       `json:"plan,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// SubmitResponse is the POST /batches reply.
type SubmitResponse struct {
	BatchID   string       `json:"batch_id"`
	Status    model.Status `json:"status"`
	Duplicate bool         `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	Submissions int
	Pages       int
	Completed   int
	Failed      int
	Issues      int
	CostUSD     float64
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
