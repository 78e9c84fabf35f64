package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
		Model:      "gpt-4o",
		Endpoint:   "https://api.openai.com/v1?key=secret",
		Cause:      errors.New("upstream reset"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "HTTP 503")
	assert.Contains(t, msg, "model=gpt-4o")
	assert.Contains(t, msg, "endpoint=api.openai.com")
	assert.Contains(t, msg, "upstream reset")
	assert.NotContains(t, msg, "secret")

	assert.Equal(t, "auth authentication failed", (&Error{Type: ErrorTypeAuth, Message: "authentication failed"}).Error())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantRetry  bool
		wantStatus int
	}{
		{"openai 401", errors.New("error, status code: 401, status: 401 Unauthorized, message: Incorrect API key"), ErrorTypeAuth, false, 401},
		{"anthropic auth", errors.New("anthropic api error type: authentication_error, message: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"model missing", errors.New("error, status code: 404, message: The model `gpt-9` does not exist"), ErrorTypeModel, false, 404},
		{"endpoint missing", errors.New("error, status code: 404, message: Not Found"), ErrorTypeEndpoint, false, 404},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), ErrorTypeEndpoint, true, 0},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeEndpoint, true, 0},
		{"canceled", fmt.Errorf("post: %w", context.Canceled), ErrorTypeEndpoint, false, 0},
		{"rate limited", errors.New("error, status code: 429, message: Rate limit reached"), ErrorTypeRateLimit, true, 429},
		{"overloaded", errors.New("anthropic api error type: overloaded_error, message: Overloaded"), ErrorTypeEndpoint, true, 0},
		{"bad gateway", errors.New("error, status code: 502, message: Bad Gateway"), ErrorTypeEndpoint, true, 502},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantRetry, got.Retryable)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, ClassifyError(nil))

	already := NewError(ErrorTypeModel, "model not found", false, nil)
	assert.Same(t, already, ClassifyError(fmt.Errorf("wrapped: %w", already)))
}
