package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/okian/grader/internal/batchclient"
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		dir        = flag.String("dir", "", "Directory of submissions, one sub-directory per student")
		rubricFile = flag.String("rubric", "", "Rubric file, JSON or YAML")
		strategy   = flag.String("strategy", "vertical", "vertical or collage")
		plan       = flag.String("plan", "", "Plan name selecting the per-batch worker limit")
		mode       = flag.String("mode", "", "Strict or Standard")
		subject    = flag.String("subject", "", "Prompt profile")
		language   = flag.String("language", "", "Language for comments")
		key        = flag.String("key", "", "Idempotency key")
		workers    = flag.Int("workers", runtime.NumCPU(), "Concurrent file readers")
		timeout    = flag.Duration("timeout", batchclient.DefaultTimeout, "HTTP request timeout")
		wait       = flag.Duration("wait", batchclient.DefaultWait, "How long to wait for the batch")
		outputFile = flag.String("output", "", "Results file (default: results_BATCHID.json)")
		logFile    = flag.String("log", "", "Log file (default: grade_batch_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *dir == "" || *rubricFile == "" {
		batchclient.ShowHelp()
		if !*help {
			os.Exit(2)
		}
		return
	}

	if err := batchclient.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err := batchclient.Run(ctx, &batchclient.Config{
		BaseURL:        *baseURL,
		Dir:            *dir,
		RubricFile:     *rubricFile,
		Strategy:       *strategy,
		Plan:           *plan,
		Mode:           *mode,
		Subject:        *subject,
		Language:       *language,
		IdempotencyKey: *key,
		Workers:        *workers,
		Timeout:        *timeout,
		Wait:           *wait,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("Batch failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
