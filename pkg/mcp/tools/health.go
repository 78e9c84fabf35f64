package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/intentgate/pkg/services"
)

type healthResult struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	CatalogVersion string `json:"catalog_version,omitempty"`
}

// RegisterHealthTool adds a health tool reporting the server and catalog
// versions.
func RegisterHealthTool(s *server.MCPServer, version string, catalogs services.CatalogProvider) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and the loaded catalog version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if cat := catalogs.Current(); cat != nil {
			result.CatalogVersion = cat.Version()
		} else {
			result.Status = "catalog_unavailable"
		}
		return jsonResult(result)
	})
}
