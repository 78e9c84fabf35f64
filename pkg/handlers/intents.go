package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/middleware"
	"github.com/ekaya-inc/intentgate/pkg/services"
)

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
	// Execute runs the compiled query against the engine.
	Execute bool `json:"execute"`
	// Limit caps returned rows; zero uses the engine guardrail.
	Limit int `json:"limit"`
}

// IntentsHandler exposes the validation and compilation pipeline over HTTP.
type IntentsHandler struct {
	queryService services.QueryService
	logger       *zap.Logger
}

// NewIntentsHandler creates a new IntentsHandler.
func NewIntentsHandler(queryService services.QueryService, logger *zap.Logger) *IntentsHandler {
	return &IntentsHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the intent handler's routes on the given mux.
func (h *IntentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/intents/compile", h.Compile)
	mux.HandleFunc("POST /api/query", h.Query)
}

// Compile handles POST /api/intents/compile. The body is the intent object.
func (h *IntentsHandler) Compile(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeBody(r, w, &raw); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if raw == nil {
		h.badRequest(w, "intent must be a JSON object")
		return
	}

	result := h.queryService.CompileIntent(pipelineContext(r), raw)
	h.writeResult(w, result)
}

// Query handles POST /api/query: question in, compiled query (and optionally
// rows) out.
func (h *IntentsHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if req.Question == "" {
		h.badRequest(w, "question is required")
		return
	}
	if req.Limit < 0 {
		h.badRequest(w, "limit must not be negative")
		return
	}

	result := h.queryService.Ask(pipelineContext(r), req.Question, services.AskOptions{
		Execute: req.Execute,
		Limit:   req.Limit,
	})
	h.writeResult(w, result)
}

func (h *IntentsHandler) writeResult(w http.ResponseWriter, result *services.QueryResult) {
	if err := WriteJSON(w, StatusForResult(result), result); err != nil {
		h.logger.Error("Failed to write response",
			zap.String("request_id", result.RequestID),
			zap.Error(err))
	}
}

func (h *IntentsHandler) badRequest(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// StatusForResult maps a pipeline outcome to an HTTP status. Validation
// failures are the caller's to fix and map to 422.
func StatusForResult(result *services.QueryResult) int {
	if result.Error == nil {
		return http.StatusOK
	}
	switch result.Error.ErrorType {
	case services.ErrorTypeCatalog:
		return http.StatusServiceUnavailable
	case services.ErrorTypeExtraction, services.ErrorTypeEngine:
		return http.StatusBadGateway
	case services.ErrorTypeQueryTooLarge:
		return http.StatusBadRequest
	case services.ErrorTypeCompilation, services.ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// pipelineContext carries the HTTP request id into the pipeline.
func pipelineContext(r *http.Request) context.Context {
	ctx := r.Context()
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		ctx = llm.WithRequestID(ctx, id)
	}
	return ctx
}
