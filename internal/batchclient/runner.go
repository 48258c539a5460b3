package batchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/pkg/logger"
)

// Report is what Run writes to the results file.
type Report struct {
	Batch  *model.Batch `json:"batch"`
	Issues []Issue      `json:"issues"`
}

// Run submits the directory, waits for the batch, saves the report and
// verifies the results. Verification problems return ErrVerification after
// the report is written.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("grade-batch")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting batch run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("dir", cfg.Dir),
		logger.String("rubric", cfg.RubricFile),
		logger.String("strategy", cfg.Strategy),
		logger.Int("workers", cfg.Workers),
	)

	// Step 1: read the rubric locally so the results can be checked against it.
	rubricText, err := os.ReadFile(cfg.RubricFile)
	if err != nil {
		return stats, fmt.Errorf("read rubric: %w", err)
	}
	parsed, err := rubric.Parse(string(rubricText))
	if err != nil {
		return stats, fmt.Errorf("parse rubric: %w", err)
	}

	// Step 2: collect submissions
	subs, err := Collect(ctx, cfg.Dir, cfg.Workers)
	if err != nil {
		return stats, err
	}
	stats.Submissions = len(subs)
	for _, s := range subs {
		stats.Pages += len(s.Pages)
	}
	log.Info(ctx, "collected submissions", logger.Int("submissions", stats.Submissions), logger.Int("pages", stats.Pages))

	// Step 3: check the service and submit
	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	ack, err := client.Submit(ctx, SubmitRequest{
		Strategy:       cfg.Strategy,
		Submissions:    subs,
		Rubric:         string(rubricText),
		Settings:       Settings{Mode: cfg.Mode, Subject: cfg.Subject, Language: cfg.Language},
		Plan:           cfg.Plan,
		IdempotencyKey: cfg.IdempotencyKey,
	})
	if err != nil {
		return stats, fmt.Errorf("submit batch: %w", err)
	}
	log.Info(ctx, "batch submitted", logger.String("batch", ack.BatchID), logger.Bool("duplicate", ack.Duplicate))

	// Step 4: wait for the batch
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	batch, err := client.Wait(waitCtx, ack.BatchID, cfg.PollInterval, func(p model.Progress) {
		log.Info(ctx, "progress",
			logger.String("phase", p.Phase),
			logger.Int("completed", p.Completed),
			logger.Int("total", p.Total),
		)
	})
	if err != nil {
		return stats, err
	}

	// Step 5: verify and save
	issues := Verify(batch.Results, Maxima(parsed))
	for _, r := range batch.Results {
		if r.Failed {
			stats.Failed++
		} else {
			stats.Completed++
		}
	}
	stats.Issues = len(issues)
	stats.CostUSD = batch.CostUSD

	out := cfg.OutputFile
	if out == "" {
		out = "results_" + batch.ID + ".json"
	}
	if err := saveReport(out, Report{Batch: batch, Issues: issues}); err != nil {
		log.Warn(ctx, "failed to save results", logger.Error(err))
	} else {
		log.Info(ctx, "results saved", logger.String("file", out))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if batch.Status == model.StatusFailed {
		return stats, fmt.Errorf("%w: %s", ErrBatchFailed, batch.Error)
	}
	if len(issues) > 0 {
		for _, is := range issues {
			log.Error(ctx, "verification issue", logger.String("issue", is.String()))
		}
		return stats, fmt.Errorf("%w: %d issues", ErrVerification, len(issues))
	}
	return stats, nil
}

func saveReport(path string, r Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, outputPermission)
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("submissions", stats.Submissions),
		logger.Int("pages", stats.Pages),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("issues", stats.Issues),
		logger.Float64("costUSD", stats.CostUSD),
		logger.Duration("duration", stats.Duration),
	)
}
