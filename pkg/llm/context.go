package llm

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey    contextKey = "llm_request_id"
	requestIDHeader            = "X-Request-Id"
)

// WithRequestID attaches a pipeline request id that outgoing LLM calls send
// as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// contextAwareTransport copies the request id from the request context into
// a header so provider-side logs can be correlated with ours.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := RequestIDFromContext(req.Context()); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}
