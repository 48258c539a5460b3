package batchclient

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/grader/pkg/logger"
)

// SetupLogging sends log output to both stderr and a file. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "grade_batch_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithOptions("text", io.MultiWriter(os.Stderr, file)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the batch grading tool.
func ShowHelp() {
	os.Stdout.WriteString(`Grade Batch Tool
================

Submits a directory of scanned exams to the grading service, waits for the
batch and verifies the results.

Usage:
  grade-batch -dir scans/ -rubric rubric.yaml [options]

Layout:
  scans/
    alice/page1.png page2.png
    bob/page1.jpg
  An image directly under the directory is a one-page submission.

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -dir string
        Directory of submissions (required)
  -rubric string
        Rubric file, JSON or YAML (required)
  -strategy string
        vertical or collage (default "vertical")
  -plan string
        Plan name selecting the per-batch worker limit
  -mode string
        Strict or Standard
  -subject string
        Prompt profile, e.g. univ_math
  -language string
        Language for comments
  -key string
        Idempotency key; resubmitting returns the first batch
  -workers int
        Concurrent file readers (default CPU cores)
  -timeout duration
        HTTP request timeout (default 1m0s)
  -wait duration
        How long to wait for the batch (default 30m0s)
  -output string
        Results file (default: results_BATCHID.json)
  -log string
        Log file (default: grade_batch_TIMESTAMP.log)
  -verbose
        Enable debug logging
  -help
        Show this help message
`)
}
