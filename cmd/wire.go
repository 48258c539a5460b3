package main

import (
	"context"
	"fmt"
	"maps"

	"github.com/okian/grader/internal/adapters/llm"
	"github.com/okian/grader/internal/adapters/repository"
	"github.com/okian/grader/internal/adapters/storage"
	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/internal/config"
	"github.com/okian/grader/internal/domain/collage"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/rubric"
	"github.com/okian/grader/internal/domain/verify"
	"github.com/okian/grader/pkg/logger"
	"github.com/okian/grader/pkg/metrics"
)

// newModelClient dials Gemini and stacks the client middleware. Metrics sit
// innermost so every attempt is measured.
func newModelClient(ctx context.Context, cfg *config.Config, log logger.Logger) (llm.Client, error) {
	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GradingModel)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return wrapClient(gemini, cfg, log), nil
}

func wrapClient(inner llm.Client, cfg *config.Config, log logger.Logger) llm.Client {
	mws := []llm.Middleware{
		llm.WithLogging(log.Named("llm")),
		llm.Retry(cfg.RetryAttempts, cfg.RetryBaseDelay()),
	}
	if cfg.RateLimitRPS > 0 {
		mws = append(mws, llm.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	mws = append(mws, llm.WithMetrics())
	return llm.Wrap(inner, mws...)
}

// pricingFrom overlays configured rates on the built-in table.
func pricingFrom(cfg *config.Config) *grading.Pricing {
	if len(cfg.Pricing) == 0 {
		return grading.DefaultPricing()
	}
	rates := map[string]grading.Rate{
		"flash": {Input: 0.075, Output: 0.30},
		"pro":   {Input: 1.25, Output: 5.00},
	}
	maps.Copy(rates, cfg.Pricing)
	return grading.NewPricing(rates, rates["pro"])
}

// newStore picks Postgres when a DSN is configured.
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.PostgresDSN == "" {
		return repository.NewMemoryStore(repository.WithRetention(cfg.StoreRetention)), nil
	}
	store, err := repository.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return store, nil
}

func newObjectSource(cfg *config.Config) (*storage.ObjectSource, error) {
	if !cfg.ObjectStorage() {
		return nil, nil
	}
	bucket, err := storage.NewMinioBucket(storage.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	return storage.NewObjectSource(bucket), nil
}

// build assembles the grading service around client. The service is not
// started.
func build(ctx context.Context, cfg *config.Config, client llm.Client, log logger.Logger) (*service.Service, error) {
	verifier := verify.New(
		verify.WithEnabled(cfg.VerifierEnabled),
		verify.WithExtraProbes(cfg.ExtraProbes, cfg.ProbeSeed),
	)
	rubrics, err := rubric.NewCache(cfg.RubricCacheSize)
	if err != nil {
		return nil, fmt.Errorf("rubric cache: %w", err)
	}
	temperature := cfg.Temperature
	orch, err := service.NewOrchestrator(client, service.OrchestratorConfig{
		Pricing: pricingFrom(cfg),
		Reconciler: grading.NewReconciler(
			grading.WithVerifier(verifier),
			grading.WithObserver(metrics.GradingObserver{}),
		),
		Rubrics: rubrics,
		Defaults: service.Settings{
			Mode:        cfg.Mode,
			Subject:     cfg.Subject,
			Language:    cfg.Language,
			Temperature: &temperature,
			Model:       cfg.GradingModel,
		},
		IdentityModel: cfg.IdentityModel,
		InferChecks:   cfg.InferChecks,
		FixTotals:     cfg.FixTotals,
		Logger:        log.Named("orchestrator"),
	})
	if err != nil {
		return nil, err
	}

	coord := service.NewCoordinator(orch, service.CoordinatorConfig{
		Workers: cfg.WorkersFor(cfg.Plan),
		Packer: collage.NewPacker(
			collage.WithGridSize(cfg.GridSize),
			collage.WithColumns(cfg.GridColumns),
			collage.WithCellSize(cfg.CellWidth, cfg.CellHeight),
		),
		ScanLimit:   cfg.TemplateScanLimit,
		HeaderRatio: cfg.HeaderRatio,
		Logger:      log.Named("coordinator"),
	})

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	source, err := newObjectSource(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithBatchWorkers(cfg.BatchWorkers),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithStore(store),
		service.WithPlanPolicy(func(plan string) int {
			if plan == "" {
				plan = cfg.Plan
			}
			return cfg.WorkersFor(plan)
		}),
	}
	if source != nil {
		opts = append(opts, service.WithObjectSource(source))
	}
	return service.New(coord, opts...), nil
}
