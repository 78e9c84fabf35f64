package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/intentgate/pkg/services"
)

// registerListCatalogTool adds list_catalog, which tells the calling model
// which metrics, dimensions and windows an intent may name.
func registerListCatalogTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_catalog",
		mcp.WithDescription(
			"List the metrics, dimensions, time dimensions, named time windows, filter operators and "+
				"granularities that a query intent may reference. Call this before compile_intent. "+
				"Terms may be given by id, name, display name or alias.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cat := deps.Catalogs.Current()
		if cat == nil {
			return NewErrorResult("catalog_unavailable", "no catalog is loaded"), nil
		}
		return jsonResult(services.SummarizeCatalog(cat))
	})
}
