package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	genai "google.golang.org/genai"

	"github.com/okian/grader/pkg/logger"
	"github.com/okian/grader/pkg/metrics"
)

// Middleware decorates a Client.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Errors the server will not change its mind about are
// returned at once.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }
func (r *retrying) Generate(ctx context.Context, req Request) (*Reply, error) {
	var last error
	for i := 0; i < r.max; i++ {
		if i > 0 {
			metrics.RecordModelRetry()
			t := time.NewTimer(r.base * time.Duration(1<<(i-1)))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if !Retryable(err) {
			return nil, err
		}
	}
	return nil, last
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

// -------- Rate limiting --------

// RateLimit allows at most rps calls per second with the given burst. A
// non-positive rps disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next Client
	lim  *rate.Limiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }
func (c *rateLimited) Generate(ctx context.Context, req Request) (*Reply, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Generate(ctx, req)
}

// -------- Logging & metrics --------

// WithLogging logs every call and its outcome. A nil logger uses the global
// one.
func WithLogging(log logger.Logger) Middleware {
	return func(next Client) Client {
		if log == nil {
			log = logger.Get().Named("llm")
		}
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next Client
	log  logger.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, req Request) (*Reply, error) {
	start := time.Now()
	l.log.Debug(ctx, "model request",
		logger.String("client", l.next.Name()),
		logger.String("purpose", req.Purpose),
		logger.Int("prompt_bytes", len(req.Prompt)),
		logger.Int("images", len(req.Images)))
	resp, err := l.next.Generate(ctx, req)
	if err != nil {
		l.log.Warn(ctx, "model call failed",
			logger.String("purpose", req.Purpose),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return nil, err
	}
	l.log.Debug(ctx, "model reply",
		logger.String("purpose", req.Purpose),
		logger.Int("input_tokens", resp.Usage.InputTokens),
		logger.Int("output_tokens", resp.Usage.OutputTokens),
		logger.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// WithMetrics records call latency, outcome and token usage.
func WithMetrics() Middleware {
	return func(next Client) Client {
		return &measured{next: next}
	}
}

type measured struct{ next Client }

func (m *measured) Name() string { return m.next.Name() }
func (m *measured) Close() error { return m.next.Close() }
func (m *measured) Generate(ctx context.Context, req Request) (*Reply, error) {
	start := time.Now()
	resp, err := m.next.Generate(ctx, req)
	metrics.RecordModelCall(req.Purpose, req.Model, time.Since(start), err)
	if resp != nil {
		metrics.RecordModelTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, err
}
