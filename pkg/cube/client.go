// Package cube is the HTTP transport to a Cube-compatible semantic-query
// engine. It sends compiled payloads and returns the engine's rows verbatim;
// it never interprets results.
package cube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/retry"
)

const (
	DefaultTimeout              = 30 * time.Second
	DefaultMaxRows              = 10000
	DefaultContinueWaitAttempts = 10
	DefaultContinueWaitDelay    = time.Second

	requestIDHeader = "X-Request-Id"
	continueWait    = "Continue wait"
	maxBodyInError  = 2048
)

// ErrQueryTooLarge is returned before any I/O when the requested row limit
// exceeds the configured maximum.
var ErrQueryTooLarge = errors.New("query limit exceeds maximum rows")

// EngineError is a failed engine call. StatusCode is zero when the request
// never got a response.
type EngineError struct {
	StatusCode int
	Message    string
	Body       string
	Retryable  bool
	Cause      error
	// Pending is set when the engine answered "Continue wait": the query is
	// accepted but not ready, and the same request should be polled again.
	Pending bool
}

func (e *EngineError) Error() string {
	msg := e.Message
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("engine returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *EngineError) Unwrap() error     { return e.Cause }
func (e *EngineError) IsRetryable() bool { return e.Retryable }

// Config holds engine connection settings.
type Config struct {
	BaseURL    string // e.g. http://localhost:4000/cubejs-api/v1
	APISecret  string // sent verbatim as Authorization when set
	Timeout    time.Duration
	MaxRows    int
	Timezone   string
	RetryDelay time.Duration

	// ContinueWaitAttempts bounds how many times a "Continue wait" answer is
	// polled before giving up. It is separate from the transport retry.
	ContinueWaitAttempts int
	ContinueWaitDelay    time.Duration
}

// Request is the body POSTed to /load.
type Request struct {
	Query Query `json:"query"`
}

// Query is a compiled payload plus the execution guardrails.
type Query struct {
	models.QueryPayload
	Limit    int               `json:"limit"`
	Timezone string            `json:"timezone,omitempty"`
	Order    map[string]string `json:"order,omitempty"`
}

// defaultOrder sorts by the queried metric, largest first.
func defaultOrder(payload *models.QueryPayload) map[string]string {
	if len(payload.Measures) == 0 {
		return nil
	}
	return map[string]string{payload.Measures[0]: "desc"}
}

// LoadResponse is the engine's answer plus transport metadata.
type LoadResponse struct {
	Data       []map[string]any `json:"data"`
	Annotation json.RawMessage  `json:"annotation,omitempty"`
	Query      json.RawMessage  `json:"query,omitempty"`
	SlowQuery  bool             `json:"slowQuery,omitempty"`
	RequestID  string           `json:"request_id"`
}

// Client provides access to the engine's REST API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewClient creates an engine client. Zero timeout, row limit, retry delay and
// continue-wait settings take defaults.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid engine base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.ContinueWaitAttempts <= 0 {
		cfg.ContinueWaitAttempts = DefaultContinueWaitAttempts
	}
	if cfg.ContinueWaitDelay <= 0 {
		cfg.ContinueWaitDelay = DefaultContinueWaitDelay
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.Named("cube"),
	}, nil
}

// MaxRows returns the row guardrail.
func (c *Client) MaxRows() int {
	return c.cfg.MaxRows
}

// Load executes payload. limit <= 0 means MaxRows. requestID is sent as
// X-Request-Id; an empty one is generated. Connection failures, timeouts and
// 5xx are retried once. "Continue wait" answers are polled up to
// ContinueWaitAttempts times.
func (c *Client) Load(ctx context.Context, requestID string, payload *models.QueryPayload, limit int) (*LoadResponse, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	if limit <= 0 {
		limit = c.cfg.MaxRows
	}
	if limit > c.cfg.MaxRows {
		return nil, fmt.Errorf("%w: %d > %d", ErrQueryTooLarge, limit, c.cfg.MaxRows)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	endpoint, err := buildURL(c.cfg.BaseURL, "load")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	body, err := json.Marshal(Request{Query: Query{
		QueryPayload: *payload,
		Limit:        limit,
		Timezone:     c.cfg.Timezone,
		Order:        defaultOrder(payload),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	retryCfg := retry.Once(c.cfg.RetryDelay)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying engine request",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	start := time.Now()
	resp, err := c.poll(ctx, requestID, func(ctx context.Context) (*LoadResponse, error) {
		return retry.DoWithResult(ctx, retryCfg, func(ctx context.Context) (*LoadResponse, error) {
			return c.doLoad(ctx, endpoint, requestID, body)
		})
	})
	if err != nil {
		c.logger.Error("Engine request failed",
			zap.String("request_id", requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("Engine request completed",
		zap.String("request_id", requestID),
		zap.Int("rows", len(resp.Data)),
		zap.Bool("slow_query", resp.SlowQuery),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// poll repeats fn while the engine reports the query as pending.
func (c *Client) poll(ctx context.Context, requestID string, fn func(ctx context.Context) (*LoadResponse, error)) (*LoadResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := fn(ctx)
		var engErr *EngineError
		if err == nil || !errors.As(err, &engErr) || !engErr.Pending {
			return resp, err
		}
		if attempt >= c.cfg.ContinueWaitAttempts {
			return nil, &EngineError{
				Message: fmt.Sprintf("query still pending after %d attempts", attempt),
				Pending: true,
				Cause:   engErr,
			}
		}

		c.logger.Debug("Engine query pending",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt))

		timer := time.NewTimer(c.cfg.ContinueWaitDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) doLoad(ctx context.Context, endpoint, requestID string, body []byte) (*LoadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if c.cfg.APISecret != "" {
		req.Header.Set("Authorization", c.cfg.APISecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &EngineError{
			Message:   "failed to call engine",
			Retryable: retry.IsRetryable(err),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &EngineError{Message: "failed to read response", Retryable: true, Cause: err}
	}

	var decoded struct {
		LoadResponse
		Error string `json:"error"`
	}
	parseErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := http.StatusText(resp.StatusCode)
		if parseErr == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return nil, &EngineError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       truncate(string(raw), maxBodyInError),
			Retryable:  resp.StatusCode >= http.StatusInternalServerError,
		}
	}
	if parseErr != nil {
		return nil, &EngineError{
			StatusCode: resp.StatusCode,
			Message:    "invalid JSON response",
			Body:       truncate(string(raw), maxBodyInError),
			Cause:      parseErr,
		}
	}
	if decoded.Error != "" {
		// The engine answers 200 {"error": "Continue wait"} while a query is
		// still being prepared.
		return nil, &EngineError{
			StatusCode: resp.StatusCode,
			Message:    decoded.Error,
			Pending:    strings.EqualFold(decoded.Error, continueWait),
		}
	}

	out := decoded.LoadResponse
	if out.Data == nil {
		out.Data = []map[string]any{}
	}
	out.RequestID = requestID
	return &out, nil
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)
	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
