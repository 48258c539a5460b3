// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/internal/domain/grading"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/logger"
)

const defaultMaxBodyBytes = 64 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	// Grade grades one submission synchronously.
	Grade(ctx context.Context, req service.GradeRequest) *grading.Response
	// Submit queues a batch; duplicate reports an idempotency key replay.
	Submit(ctx context.Context, req service.SubmitRequest) (*model.Batch, bool, error)

	// Read operations expose batch state.
	Batch(ctx context.Context, id string) (*model.Batch, error)
	Batches(ctx context.Context, limit int) ([]*model.Batch, error)
	Subscribe(ctx context.Context, id string) (<-chan model.Progress, func(), error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server wires HTTP routes for the grading API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	gradeHandler  *GradeHandler
	batchHandler  *BatchHandler
	streamHandler *StreamHandler

	maxBody int64
	logger  logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxBody: defaultMaxBodyBytes,
		logger:  logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.gradeHandler = NewGradeHandler(deps, s.logger)
	s.batchHandler = NewBatchHandler(deps, s.logger)
	s.streamHandler = NewStreamHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	wrap := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(RecoverMiddleware(LimitBody(h, s.maxBody), s.logger), endpoint)
	}

	mux.HandleFunc("GET /healthz", wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", wrap(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /grade", wrap(s.gradeHandler.HandleGrade, "grade"))
	mux.HandleFunc("POST /batches", wrap(s.batchHandler.HandleSubmit, "batches_submit"))
	mux.HandleFunc("GET /batches", wrap(s.batchHandler.HandleList, "batches_list"))
	mux.HandleFunc("GET /batches/{id}", wrap(s.batchHandler.HandleGet, "batches_get"))
	mux.HandleFunc("GET /batches/{id}/events", wrap(s.streamHandler.HandleEvents, "batches_events"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Err != nil:
		msg = apiErr.Err.Error()
	case err != nil:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service failures onto status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case service.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, service.ErrNoSubmissions),
		errors.Is(err, service.ErrNoSource),
		errors.Is(err, service.ErrEmptyRubric),
		errors.Is(err, service.ErrDuplicateSubmission):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
