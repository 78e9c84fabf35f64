package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/middleware"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalBoolWithDefault extracts an optional boolean argument.
func getOptionalBoolWithDefault(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if val, ok := arguments(req)[key].(bool); ok {
		return val
	}
	return defaultVal
}

// getOptionalFloat extracts an optional number argument.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getObject extracts an object argument. Some clients send objects as a JSON
// string, which is accepted too.
func getObject(req mcp.CallToolRequest, key string) (map[string]any, error) {
	switch v := arguments(req)[key].(type) {
	case map[string]any:
		return v, nil
	case string:
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil {
			return nil, fmt.Errorf("%s must be a JSON object", key)
		}
		return obj, nil
	case nil:
		return nil, fmt.Errorf("%s is required", key)
	default:
		return nil, fmt.Errorf("%s must be a JSON object", key)
	}
}

// toolContext carries the HTTP request id into the pipeline.
func toolContext(ctx context.Context) context.Context {
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		return llm.WithRequestID(ctx, id)
	}
	return ctx
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
