package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer that exposes the intent pipeline as tools.
type Server struct {
	mcp     *server.MCPServer
	toolLog *ToolCallLogger
	logger  *zap.Logger
}

// NewServer creates an MCP server whose tool calls are logged through logger.
func NewServer(name, version string, logger *zap.Logger) *Server {
	toolLog := NewToolCallLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(toolLog.Hooks()),
	)

	return &Server{
		mcp:     mcpServer,
		toolLog: toolLog,
		logger:  logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates the stateless HTTP transport. Routing to
// /mcp is left to the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
