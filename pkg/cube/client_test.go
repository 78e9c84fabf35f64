package cube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/models"
)

func samplePayload() *models.QueryPayload {
	return &models.QueryPayload{
		Measures:       []string{"total_quantity"},
		Dimensions:     []string{"region"},
		TimeDimensions: []models.TimeDimensionQuery{{Dimension: "invoice_date", DateRange: "last 7 days"}},
		Filters:        []models.FilterQuery{},
	}
}

func newTestClient(t *testing.T, url string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{BaseURL: url + "/cubejs-api/v1", APISecret: "secret-token", MaxRows: 500, Timezone: "Asia/Kolkata", RetryDelay: time.Millisecond, ContinueWaitDelay: time.Millisecond}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestLoad_Success(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cubejs-api/v1/load", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get("X-Request-Id"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [{"region": "North", "total_quantity": "120"}],
			"annotation": {"measures": {}},
			"slowQuery": true
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Load(context.Background(), "req-42", samplePayload(), 0)
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{{"region": "North", "total_quantity": "120"}}, resp.Data)
	assert.True(t, resp.SlowQuery)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.JSONEq(t, `{"measures": {}}`, string(resp.Annotation))

	query, ok := got["query"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 500, query["limit"])
	assert.Equal(t, "Asia/Kolkata", query["timezone"])
	assert.Equal(t, []any{"total_quantity"}, query["measures"])
	assert.Equal(t, map[string]any{"total_quantity": "desc"}, query["order"])
	assert.Equal(t, []any{}, query["filters"])
	tds := query["timeDimensions"].([]any)
	assert.Equal(t, "last 7 days", tds[0].(map[string]any)["dateRange"])
}

func TestLoad_GeneratesRequestID(t *testing.T) {
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL).Load(context.Background(), "", samplePayload(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, header)
	assert.Equal(t, header, resp.RequestID)
	assert.NotNil(t, resp.Data)
}

func TestLoad_RowGuardrail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Load(context.Background(), "r", samplePayload(), 501)
	assert.ErrorIs(t, err, ErrQueryTooLarge)
	assert.Equal(t, int32(0), calls.Load())
}

func TestLoad_RetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"n": 1}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL).Load(context.Background(), "r", samplePayload(), 0)
	require.NoError(t, err)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoad_PollsWhileContinueWait(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 4 {
			_, _ = w.Write([]byte(`{"error": "Continue wait"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"n": 1}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL).Load(context.Background(), "r", samplePayload(), 0)
	require.NoError(t, err)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int32(5), calls.Load())
}

func TestLoad_ContinueWaitGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"error": "Continue wait"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.ContinueWaitAttempts = 3 })
	_, err := c.Load(context.Background(), "r", samplePayload(), 0)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.True(t, engErr.Pending)
	assert.False(t, engErr.Retryable)
	assert.Contains(t, engErr.Error(), "still pending after 3 attempts")
	assert.Equal(t, int32(3), calls.Load(), "pending answers are not retried by the transport")
}

func TestLoad_ContinueWaitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"error": "Continue wait"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.ContinueWaitDelay = time.Minute })
	_, err := c.Load(ctx, "r", samplePayload(), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoad_NoOrderWithoutMeasures(t *testing.T) {
	var got map[string]map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	payload := samplePayload()
	payload.Measures = []string{}
	_, err := newTestClient(t, server.URL).Load(context.Background(), "r", payload, 0)
	require.NoError(t, err)
	assert.NotContains(t, got["query"], "order")
}

func TestLoad_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "Cube 'sales' not found for path 'sales.bogus'"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Load(context.Background(), "r", samplePayload(), 0)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, http.StatusBadRequest, engErr.StatusCode)
	assert.Contains(t, engErr.Message, "not found")
	assert.Contains(t, engErr.Error(), "HTTP 400")
	assert.False(t, engErr.Retryable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoad_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Load(context.Background(), "r", samplePayload(), 0)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "invalid JSON response", engErr.Message)
	assert.Contains(t, engErr.Body, "gateway")
}

func TestLoad_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Load(context.Background(), "r", samplePayload(), 0)
	var engErr *EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, 0, engErr.StatusCode)
	assert.True(t, engErr.Retryable)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://cube:4000/cubejs-api/v1"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRows, c.MaxRows())
}
