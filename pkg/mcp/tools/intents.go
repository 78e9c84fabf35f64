package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/intentgate/pkg/services"
)

// ToolDeps holds what the intent tools need.
type ToolDeps struct {
	Catalogs     services.CatalogProvider
	QueryService services.QueryService
	// AllowExecute lets ask_question run queries against the engine.
	AllowExecute bool
}

// RegisterIntentTools adds list_catalog, compile_intent and ask_question.
func RegisterIntentTools(s *server.MCPServer, deps *ToolDeps) {
	registerListCatalogTool(s, deps)
	registerCompileIntentTool(s, deps)
	registerAskQuestionTool(s, deps)
}

func registerCompileIntentTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"compile_intent",
		mcp.WithDescription(
			"Validate a structured query intent against the catalog and compile it into a semantic-layer query. "+
				"intent_type is SNAPSHOT or TREND. TREND needs time_dimension with a granularity and a time_range. "+
				"On failure the result carries an error_code and suggestions for the offending field; fix it and retry.",
		),
		mcp.WithObject(
			"intent",
			mcp.Required(),
			mcp.Description("The intent: {intent_type, metric, group_by, time_dimension, time_range, filters}"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		intent, err := getObject(req, "intent")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		return pipelineResult(deps.QueryService.CompileIntent(toolContext(ctx), intent))
	})
}

func registerAskQuestionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"ask_question",
		mcp.WithDescription(
			"Answer a business question in plain language. The question is turned into an intent, validated, "+
				"compiled and, when execute is true, run against the semantic layer.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question, e.g. 'monthly secondary sales by region last quarter'"),
		),
		mcp.WithBoolean(
			"execute",
			mcp.Description("Run the compiled query and return rows (default: false)"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Max rows to return when executing"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}

		opts := services.AskOptions{
			Execute: getOptionalBoolWithDefault(req, "execute", false),
		}
		if opts.Execute && !deps.AllowExecute {
			return NewErrorResult("execution_disabled", "query execution is not enabled on this server"), nil
		}
		if limit, ok := getOptionalFloat(req, "limit"); ok {
			if limit < 0 {
				return NewErrorResult("invalid_parameters", "limit must not be negative"), nil
			}
			opts.Limit = int(limit)
		}

		return pipelineResult(deps.QueryService.Ask(toolContext(ctx), question, opts))
	})
}

// pipelineResult returns the whole pipeline result. Failures are flagged as
// tool errors but keep their stage, code and suggestions.
func pipelineResult(res *services.QueryResult) (*mcp.CallToolResult, error) {
	result, err := jsonResult(res)
	if err != nil {
		return nil, err
	}
	result.IsError = !res.Success
	return result, nil
}
