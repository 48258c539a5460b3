// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New(ctx) to build a Config with defaults.
//   - Load layers defaults, an optional .env file, an optional YAML file and
//     GRADER_ prefixed environment variables.
//   - Validation failures wrap ErrInvalidConfig; loading failures wrap
//     ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/grader/internal/domain/grading"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory batch queue.
	QueueSize int `koanf:"queue_size"`

	// BatchWorkers sets how many batches run concurrently.
	BatchWorkers int `koanf:"batch_workers"`

	// DedupeSize sets the size of the idempotency key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Plan selects the per-batch concurrency from PlanWorkers.
	Plan              string         `koanf:"plan"`
	PlanWorkers       map[string]int `koanf:"plan_workers"`
	DefaultMaxWorkers int            `koanf:"default_max_workers"`

	GradingModel  string  `koanf:"grading_model"`
	IdentityModel string  `koanf:"identity_model"`
	GeminiAPIKey  string  `koanf:"gemini_api_key"`
	Temperature   float64 `koanf:"temperature"`

	// Language is the language model comments are written in.
	Language string `koanf:"language"`
	// Mode is the default strictness, Strict or Standard.
	Mode string `koanf:"mode"`
	// Subject selects the default prompt profile.
	Subject string `koanf:"subject"`

	InferChecks bool `koanf:"infer_checks"`
	FixTotals   bool `koanf:"fix_totals"`

	// Model client middleware.
	RetryAttempts    int     `koanf:"retry_attempts"`
	RetryBaseDelayMS int     `koanf:"retry_base_delay_ms"`
	RateLimitRPS     float64 `koanf:"rate_limit_rps"`
	RateLimitBurst   int     `koanf:"rate_limit_burst"`

	// Collage packing.
	GridSize    int `koanf:"grid_size"`
	GridColumns int `koanf:"grid_columns"`
	CellWidth   int `koanf:"cell_width"`
	CellHeight  int `koanf:"cell_height"`

	TemplateScanLimit int     `koanf:"template_scan_limit"`
	HeaderRatio       float64 `koanf:"header_ratio"`

	// Symbolic verification.
	VerifierEnabled bool   `koanf:"verifier_enabled"`
	ExtraProbes     int    `koanf:"extra_probes"`
	ProbeSeed       uint64 `koanf:"probe_seed"`

	RubricCacheSize int `koanf:"rubric_cache_size"`

	// Pricing overrides the built-in USD per million token rates.
	Pricing map[string]grading.Rate `koanf:"pricing"`

	// PostgresDSN switches the batch store from memory to Postgres.
	PostgresDSN string `koanf:"postgres_dsn"`
	// StoreRetention bounds how many finished batches the memory store keeps.
	StoreRetention int `koanf:"store_retention"`

	S3Endpoint  string `koanf:"s3_endpoint"`
	S3Region    string `koanf:"s3_region"`
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`
	S3Bucket    string `koanf:"s3_bucket"`
	S3UseSSL    bool   `koanf:"s3_use_ssl"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		QueueSize:    1000,
		BatchWorkers: 2,
		DedupeSize:   50_000,
		Plan:         "personal",
		PlanWorkers: map[string]int{
			"personal": 5,
			"free":     1,
			"pro":      5,
			"business": 8,
		},
		DefaultMaxWorkers: 10,
		GradingModel:      "gemini-2.5-pro",
		IdentityModel:     "gemini-2.5-flash",
		Temperature:       0,
		Language:          "Traditional Chinese",
		Mode:              grading.ModeStrict,
		Subject:           "univ_math",
		InferChecks:       true,
		RetryAttempts:     3,
		RetryBaseDelayMS:  500,
		GridSize:          9,
		GridColumns:       3,
		CellWidth:         1024,
		CellHeight:        600,
		TemplateScanLimit: 20,
		HeaderRatio:       0.15,
		VerifierEnabled:   true,
		RubricCacheSize:   128,
		StoreRetention:    1000,
		S3Region:          "us-east-1",
	}
}

// WorkersFor returns the per-batch concurrency of plan. Unknown plans get
// DefaultMaxWorkers.
func (c *Config) WorkersFor(plan string) int {
	if n, ok := c.PlanWorkers[strings.ToLower(strings.TrimSpace(plan))]; ok && n > 0 {
		return n
	}
	if c.DefaultMaxWorkers > 0 {
		return c.DefaultMaxWorkers
	}
	return 1
}

// RetryBaseDelay returns RetryBaseDelayMS as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// ObjectStorage reports whether an S3 bucket is configured.
func (c *Config) ObjectStorage() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// Validate checks the values Load cannot repair.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.BatchWorkers <= 0:
		return fmt.Errorf("%w: batch_workers must be positive", ErrInvalidConfig)
	case c.Mode != grading.ModeStrict && c.Mode != grading.ModeStandard:
		return fmt.Errorf("%w: mode must be %s or %s", ErrInvalidConfig, grading.ModeStrict, grading.ModeStandard)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidConfig)
	case c.GridSize <= 0 || c.GridColumns <= 0:
		return fmt.Errorf("%w: grid_size and grid_columns must be positive", ErrInvalidConfig)
	case c.CellWidth <= 0 || c.CellHeight <= 0:
		return fmt.Errorf("%w: cell dimensions must be positive", ErrInvalidConfig)
	case c.HeaderRatio <= 0 || c.HeaderRatio > 1:
		return fmt.Errorf("%w: header_ratio must be within (0, 1]", ErrInvalidConfig)
	case c.RetryAttempts < 1:
		return fmt.Errorf("%w: retry_attempts must be at least 1", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	return nil
}
