package batchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/logger"
)

// Client talks to the grading service.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// Health checks the service answers on /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrHTTP, resp.StatusCode)
	}
	return nil
}

// Submit posts a batch. A 200 reply means the idempotency key was replayed.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/batches", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &out, nil
}

// Batch fetches the current state of batch id.
func (c *Client) Batch(ctx context.Context, id string) (*model.Batch, error) {
	resp, err := c.do(ctx, http.MethodGet, "/batches/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var b model.Batch
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

// Wait blocks until batch id is terminal and returns it. Progress is streamed
// over the events websocket; if that cannot be opened the batch is polled.
func (c *Client) Wait(ctx context.Context, id string, poll time.Duration, onProgress func(model.Progress)) (*model.Batch, error) {
	if err := c.watch(ctx, id, onProgress); err != nil {
		logger.Get().Debug(ctx, "progress stream unavailable, polling", logger.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		b, err := c.Batch(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.Status.Terminal() {
			return b, nil
		}
		if onProgress != nil {
			onProgress(model.Progress{BatchID: id, Status: b.Status, Completed: b.Completed, Total: b.Total})
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

type streamFrame struct {
	Type     string          `json:"type"`
	Progress *model.Progress `json:"progress"`
}

// watch follows the events stream until the server closes it.
func (c *Client) watch(ctx context.Context, id string, onProgress func(model.Progress)) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/batches/" + id + "/events"
	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var f streamFrame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if f.Progress != nil && onProgress != nil {
			onProgress(*f.Progress)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func statusError(resp *http.Response) error {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return fmt.Errorf("%w %d: %s: %s", ErrHTTP, resp.StatusCode, e.Code, e.Message)
	}
	return fmt.Errorf("%w %d", ErrHTTP, resp.StatusCode)
}
