// Package service provides the grading service that implements the
// dependencies required by the HTTP API: synchronous grading, queued batches
// with idempotency keys, persisted batch state and progress streaming.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	batchqueue "github.com/okian/grader/internal/adapters/mq/queue"
	workerpool "github.com/okian/grader/internal/adapters/mq/worker"
	"github.com/okian/grader/internal/adapters/repository"
	"github.com/okian/grader/internal/adapters/storage"
	"github.com/okian/grader/internal/domain/dedupe"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/layout"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/logger"
	"github.com/okian/grader/pkg/metrics"
)

// SubmitRequest describes an asynchronous batch.
type SubmitRequest struct {
	Strategy    model.Strategy
	Submissions []model.Submission
	// Prefix loads submissions from object storage instead.
	Prefix         string
	Rubric         string
	Settings       Settings
	Plan           string
	IdempotencyKey string
	LayoutMap      []layout.PageBoxes
	IgnoreFirst    bool
}

type job struct {
	batchID string
	req     SubmitRequest
}

// Service implements the API dependencies for the grading system.
type Service struct {
	mu sync.RWMutex
	// keyMu covers an idempotency key from claim until its batch is stored.
	keyMu sync.Mutex

	// Core components
	coord   *Coordinator
	store   repository.Store
	deduper dedupe.Deduper
	queue   *batchqueue.InMemoryQueue[job]
	pool    *workerpool.Pool[job]
	hub     *Hub
	source  *storage.ObjectSource

	// Configuration
	batchWorkers int
	queueSize    int
	dedupeSize   int
	plans        func(plan string) int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBatchWorkers sets how many batches run at the same time.
func WithBatchWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.batchWorkers = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting batches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore replaces the in-memory batch store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithObjectSource enables object storage prefixes and result archiving.
func WithObjectSource(src *storage.ObjectSource) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithPlanPolicy maps a batch plan to its grading concurrency.
func WithPlanPolicy(fn func(plan string) int) Option {
	return func(s *Service) {
		if fn != nil {
			s.plans = fn
		}
	}
}

// New constructs a new Service with default configuration.
func New(coord *Coordinator, opts ...Option) *Service {
	s := &Service{
		coord:        coord,
		batchWorkers: max(2, runtime.NumCPU()/2),
		queueSize:    1000,
		dedupeSize:   50_000,
		plans:        func(string) int { return 0 },
		hub:          NewHub(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting grading service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory batch store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = batchqueue.NewInMemoryQueue[job](
		batchqueue.WithCapacity(s.queueSize),
		batchqueue.WithBufferSize(s.queueSize),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.batchWorkers, s.queue, workerpool.HandlerFunc[job](s.run))
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "grading service started",
		logger.Int("batchWorkers", s.batchWorkers),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the queue, waits for running batches and releases resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping grading service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "batches still running at shutdown", logger.Error(err))
	}
	s.cancel()
	s.hub.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing batch store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "grading service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Grade grades one submission synchronously.
func (s *Service) Grade(ctx context.Context, req GradeRequest) *grading.Response {
	start := time.Now()
	resp, err := s.coord.Orchestrator().grade(ctx, req)
	metrics.RecordSubmissionGraded("single", err != nil, time.Since(start))
	return resp
}

// Submit validates and queues a batch. A repeated idempotency key returns the
// batch it first created and reports duplicate.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (batch *model.Batch, duplicate bool, err error) {
	if !s.running() {
		return nil, false, ErrNotStarted
	}
	if req.Strategy == "" {
		req.Strategy = model.StrategyVertical
	}
	if !req.Strategy.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidStrategy, req.Strategy)
	}
	req.Prefix = strings.Trim(req.Prefix, "/")
	switch {
	case req.Prefix != "" && s.source == nil:
		return nil, false, ErrNoSource
	case req.Prefix == "" && len(req.Submissions) == 0:
		return nil, false, ErrNoSubmissions
	}
	if _, err := s.coord.Orchestrator().Compile(req.Rubric, req.Settings.Subject); err != nil {
		return nil, false, err
	}

	id := uuid.NewString()
	if key := req.IdempotencyKey; key != "" {
		s.keyMu.Lock()
		defer s.keyMu.Unlock()
		if b, ok := s.claim(ctx, key, id); ok {
			metrics.RecordDuplicateBatch()
			return b, true, nil
		}
	}

	now := time.Now().UTC()
	b := &model.Batch{
		ID:             id,
		Strategy:       req.Strategy,
		Status:         model.StatusQueued,
		Plan:           req.Plan,
		IdempotencyKey: req.IdempotencyKey,
		Total:          len(req.Submissions),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		s.release(ctx, req.IdempotencyKey)
		return nil, false, err
	}

	if !s.queue.Enqueue(ctx, job{batchID: id, req: req}) {
		s.release(ctx, req.IdempotencyKey)
		b.Status = model.StatusFailed
		b.Error = ErrBackpressure.Error()
		b.UpdatedAt = time.Now().UTC()
		_ = s.store.Save(ctx, b)
		return nil, false, ErrBackpressure
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))

	s.logger.Info(ctx, "batch queued",
		logger.String("batch", id),
		logger.String("strategy", string(req.Strategy)),
		logger.Int("submissions", len(req.Submissions)),
	)
	return b, false, nil
}

// claim returns the batch already owning key, or records id as its owner.
// Callers hold keyMu, so a claimed owner is always in the store unless it
// was evicted since.
func (s *Service) claim(ctx context.Context, key, id string) (*model.Batch, bool) {
	for range 2 {
		owner, seen := s.deduper.Claim(ctx, key, id)
		if !seen {
			return nil, false
		}
		b, err := s.store.Get(ctx, owner)
		if err == nil {
			return b, true
		}
		// The owner was evicted; the key is free again.
		s.deduper.Release(ctx, key)
	}
	return nil, false
}

func (s *Service) release(ctx context.Context, key string) {
	if key != "" {
		s.deduper.Release(ctx, key)
	}
}

// Batch returns the stored state of batch id.
func (s *Service) Batch(ctx context.Context, id string) (*model.Batch, error) {
	return s.store.Get(ctx, id)
}

// Batches lists recent batches without their results.
func (s *Service) Batches(ctx context.Context, limit int) ([]*model.Batch, error) {
	return s.store.List(ctx, limit)
}

// Subscribe streams the progress of batch id. A finished batch yields its
// final step and a closed channel.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan model.Progress, func(), error) {
	ch, cancel := s.hub.Subscribe(id)
	b, err := s.store.Get(ctx, id)
	if err != nil {
		cancel()
		return nil, func() {}, err
	}
	if !b.Status.Terminal() {
		return ch, cancel, nil
	}
	cancel()
	final := make(chan model.Progress, 1)
	final <- progressOf(b, "done")
	close(final)
	return final, func() {}, nil
}

func progressOf(b *model.Batch, phase string) model.Progress {
	return model.Progress{
		BatchID:   b.ID,
		Status:    b.Status,
		Phase:     phase,
		Completed: b.Completed,
		Total:     b.Total,
		Message:   b.Error,
	}
}

// run executes one queued batch.
func (s *Service) run(ctx context.Context, j job) error {
	start := time.Now()
	metrics.RecordBatchStarted()
	metrics.UpdateQueueSize(s.queue.Len(ctx))

	// State writes outlive a shutdown cancel so the batch is not left running.
	persist := context.WithoutCancel(ctx)

	b, err := s.store.Get(persist, j.batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", j.batchID, err)
	}
	b.Status = model.StatusRunning
	b.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(persist, b); err != nil {
		return fmt.Errorf("save batch %s: %w", j.batchID, err)
	}
	s.hub.Publish(progressOf(b, "started"))

	subs := j.req.Submissions
	if j.req.Prefix != "" {
		subs, err = s.source.Submissions(ctx, j.req.Prefix)
		if err != nil {
			return s.fail(persist, b, j, start, err)
		}
	}
	b.Total = len(subs)

	breq := BatchRequest{
		Submissions: subs,
		Rubric:      j.req.Rubric,
		Settings:    j.req.Settings,
		Workers:     s.plans(j.req.Plan),
		Progress: func(phase string, done, total int) {
			s.hub.Publish(model.Progress{
				BatchID:   b.ID,
				Status:    model.StatusRunning,
				Phase:     phase,
				Completed: done,
				Total:     total,
			})
		},
	}

	var results []model.StudentResult
	switch j.req.Strategy {
	case model.StrategyCollage:
		results, b.Diagnostics, err = s.coord.RunCollageBatch(ctx, CollageRequest{
			BatchRequest: breq,
			LayoutMap:    j.req.LayoutMap,
			IgnoreFirst:  j.req.IgnoreFirst,
		})
	default:
		results, err = s.coord.RunBatch(ctx, breq)
	}
	if results == nil {
		if err == nil {
			err = ErrNoSubmissions
		}
		return s.fail(persist, b, j, start, err)
	}

	b.Results = results
	b.Completed = len(results)
	b.Summarize()
	b.Status = model.StatusCompleted
	if err != nil {
		b.Status = model.StatusFailed
		b.Error = err.Error()
	}
	b.UpdatedAt = time.Now().UTC()
	// Archive first so a terminal batch in the store is already archived.
	s.archive(persist, b)
	if serr := s.store.Save(persist, b); serr != nil {
		s.logger.Error(ctx, "saving batch results", logger.String("batch", b.ID), logger.Error(serr))
		metrics.RecordErrorByComponent("service", "store")
	}

	s.hub.Publish(progressOf(b, "done"))
	metrics.RecordBatchFinished(string(b.Strategy), string(b.Status), time.Since(start))
	s.logger.Info(ctx, "batch finished",
		logger.String("batch", b.ID),
		logger.String("status", string(b.Status)),
		logger.Int("submissions", b.Total),
		logger.Float64("costUSD", b.CostUSD),
		logger.Duration("elapsed", time.Since(start)),
	)
	return err
}

func (s *Service) fail(ctx context.Context, b *model.Batch, j job, start time.Time, cause error) error {
	b.Status = model.StatusFailed
	b.Error = cause.Error()
	b.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, b); err != nil {
		s.logger.Error(ctx, "saving failed batch", logger.String("batch", b.ID), logger.Error(err))
	}
	s.release(ctx, j.req.IdempotencyKey)
	s.hub.Publish(progressOf(b, "failed"))
	metrics.RecordBatchFinished(string(b.Strategy), string(b.Status), time.Since(start))
	s.logger.Warn(ctx, "batch failed", logger.String("batch", b.ID), logger.Error(cause))
	return cause
}

// archive writes the finished batch to object storage when configured.
func (s *Service) archive(ctx context.Context, b *model.Batch) {
	if s.source == nil {
		return
	}
	doc, err := json.Marshal(b)
	if err == nil {
		err = s.source.Archive(ctx, b.ID, doc)
	}
	if err != nil {
		s.logger.Warn(ctx, "archiving batch", logger.String("batch", b.ID), logger.Error(err))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"batchWorkers": s.batchWorkers,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		batches := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["activeBatches"] = s.pool.Active()
		stats["totalBatches"] = batches
		stats["idempotencyKeys"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateRepositoryBatches(batches)
		metrics.UpdateWorkerCount(s.batchWorkers)
	}

	return stats
}

// IsNotFound reports whether err means the batch does not exist.
func IsNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }
