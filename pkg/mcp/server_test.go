package mcp

import (
	"context"
	"errors"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("intentgate", "1.0.0", logger)

	require.NotNil(t, s)
	require.NotNil(t, s.MCP())
	assert.Same(t, s.mcp, s.MCP())
	assert.NotNil(t, s.toolLog)
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestServer_ToolCallsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewServer("intentgate", "1.0.0", zap.New(core))

	s.RegisterTool(mcplib.NewTool("echo"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return mcplib.NewToolResultText("ok"), nil
	})
	s.RegisterTool(mcplib.NewTool("broken"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return nil, errors.New("dial postgres://admin:hunter2@db:5432/catalog failed")
	})

	s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"broken"}}`))

	completed := logs.FilterMessage("Tool call completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, "echo", completed[0].ContextMap()["tool"])
	assert.Equal(t, false, completed[0].ContextMap()["is_error"])

	failed := logs.FilterMessage("Tool call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["tool"])
	assert.NotContains(t, failed[0].ContextMap()["error"], "hunter2")
}

func TestToolCallLogger_ErrorResults(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewToolCallLogger(zap.New(core))

	req := &mcplib.CallToolRequest{}
	req.Params.Name = "compile_intent"
	result := mcplib.NewToolResultText(`{"success": false}`)
	result.IsError = true

	l.beforeCallTool(context.Background(), 7, req)
	l.afterCallTool(context.Background(), 7, req, result)

	entries := logs.FilterMessage("Tool call returned an error result").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["is_error"])

	_, pending := l.startTimes.Load(7)
	assert.False(t, pending, "start time must be released after the call")
}

func TestToolCallLogger_IgnoresOtherMethods(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	l.onError(context.Background(), 1, mcplib.MethodToolsList, nil, errors.New("boom"))
	assert.Zero(t, logs.Len())
}
