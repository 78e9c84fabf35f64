package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/audit"
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/compiler"
	"github.com/ekaya-inc/intentgate/pkg/cube"
	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/logging"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/validator"
)

// Stage is the last pipeline step a request completed.
type Stage string

const (
	StageReceived        Stage = "received"
	StageIntentExtracted Stage = "intent_extracted"
	StageIntentValidated Stage = "intent_validated"
	StageQueryCompiled   Stage = "query_compiled"
	StageQueryExecuted   Stage = "query_executed"
	StageCompleted       Stage = "completed"
)

// Error types reported for failures that are not validation errors.
const (
	ErrorTypeExtraction    = "ExtractionError"
	ErrorTypeCompilation   = "CompilationError"
	ErrorTypeEngine        = "EngineError"
	ErrorTypeQueryTooLarge = "QueryTooLargeError"
	ErrorTypeCatalog       = "CatalogUnavailableError"
	ErrorTypeInternal      = "InternalError"
)

// PipelineError says where a request stopped and why. Stage is the last stage
// that succeeded.
type PipelineError struct {
	Stage     Stage          `json:"stage"`
	ErrorType string         `json:"error_type"`
	ErrorCode string         `json:"error_code,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
}

func (e *PipelineError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s after %s: %s: %s", e.ErrorType, e.Stage, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("%s after %s: %s", e.ErrorType, e.Stage, e.Message)
}

// QueryResult carries every intermediate output of one pipeline run, whether
// it succeeded or not. Fields for stages that were not reached stay empty.
type QueryResult struct {
	RequestID         string                  `json:"request_id"`
	Question          string                  `json:"question,omitempty"`
	Success           bool                    `json:"success"`
	Stage             Stage                   `json:"stage"`
	DurationMs        int64                   `json:"duration_ms"`
	CatalogVersion    string                  `json:"catalog_version,omitempty"`
	RawIntent         map[string]any          `json:"raw_intent,omitempty"`
	ValidatedIntent   *models.ValidatedIntent `json:"validated_intent,omitempty"`
	Query             *models.QueryPayload    `json:"query,omitempty"`
	ResolvedDateRange []string                `json:"resolved_date_range,omitempty"`
	Data              []map[string]any        `json:"data,omitempty"`
	Error             *PipelineError          `json:"error,omitempty"`
}

// AskOptions controls how far Ask goes.
type AskOptions struct {
	// Execute runs the compiled query against the engine. Without an engine
	// client the pipeline stops after compilation.
	Execute bool
	// Limit caps returned rows; zero means the engine client's guardrail.
	Limit int
}

// CatalogProvider hands out the catalog for one request. *catalog.Holder
// implements it.
type CatalogProvider interface {
	Current() *catalog.Catalog
}

// QueryEngine executes compiled payloads. *cube.Client implements it.
type QueryEngine interface {
	Load(ctx context.Context, requestID string, payload *models.QueryPayload, limit int) (*cube.LoadResponse, error)
}

// QueryService runs the question → intent → payload → data pipeline.
type QueryService interface {
	// CompileIntent validates and compiles an intent the caller already has.
	CompileIntent(ctx context.Context, raw map[string]any) *QueryResult

	// Ask extracts an intent from question and takes it as far as opts allow.
	Ask(ctx context.Context, question string, opts AskOptions) *QueryResult
}

type queryService struct {
	catalogs  CatalogProvider
	extractor IntentExtractor
	engine    QueryEngine
	opts      validator.Options
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewQueryService wires the pipeline. extractor and engine may be nil, in
// which case Ask fails at extraction and never executes.
func NewQueryService(
	catalogs CatalogProvider,
	extractor IntentExtractor,
	engine QueryEngine,
	opts validator.Options,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		catalogs:  catalogs,
		extractor: extractor,
		engine:    engine,
		opts:      opts,
		auditor:   audit.NewSecurityAuditor(logger),
		logger:    logger.Named("pipeline"),
	}
}

var _ QueryService = (*queryService)(nil)

// run is the state of a single request. The catalog is pinned at the start so
// a concurrent reload cannot change the answer halfway through.
type run struct {
	ctx    context.Context
	result *QueryResult
	cat    *catalog.Catalog
	start  time.Time
}

// begin reuses a request id already on ctx so log lines from the HTTP layer,
// the pipeline and the model call line up.
func (s *queryService) begin(ctx context.Context, question string) *run {
	requestID := llm.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	r := &run{
		ctx: ctx,
		result: &QueryResult{
			RequestID: requestID,
			Question:  question,
			Stage:     StageReceived,
		},
		cat:   s.catalogs.Current(),
		start: time.Now(),
	}
	if r.cat != nil {
		r.result.CatalogVersion = r.cat.Version()
	}
	return r
}

func (s *queryService) CompileIntent(ctx context.Context, raw map[string]any) *QueryResult {
	r := s.begin(ctx, "")
	r.result.RawIntent = raw
	s.logger.Info("Compile started", zap.String("request_id", r.result.RequestID))

	if !s.validateAndCompile(r, raw) {
		return s.finish(r)
	}
	r.result.Stage = StageCompleted
	r.result.Success = true
	return s.finish(r)
}

func (s *queryService) Ask(ctx context.Context, question string, opts AskOptions) *QueryResult {
	r := s.begin(ctx, question)
	s.logger.Info("Pipeline started",
		zap.String("request_id", r.result.RequestID),
		zap.String("question", logging.SanitizeQuestion(question)))

	if s.extractor == nil {
		return s.fail(r, &PipelineError{
			ErrorType: ErrorTypeExtraction,
			Message:   "no language model configured",
			Details:   map[string]any{},
		})
	}
	if r.cat == nil {
		return s.fail(r, catalogUnavailable())
	}

	raw, err := s.extractor.Extract(llm.WithRequestID(ctx, r.result.RequestID), r.cat, question)
	if err != nil {
		return s.fail(r, extractionError(err))
	}
	r.result.RawIntent = raw
	r.result.Stage = StageIntentExtracted

	if !s.validateAndCompile(r, raw) {
		return s.finish(r)
	}

	if opts.Execute && s.engine != nil {
		resp, err := s.engine.Load(ctx, r.result.RequestID, r.result.Query, opts.Limit)
		if err != nil {
			return s.fail(r, engineError(err))
		}
		r.result.Data = resp.Data
		r.result.Stage = StageQueryExecuted
		s.auditor.LogQueryExecution(ctx, r.result.RequestID, audit.ExecutionDetails{
			CatalogVersion: r.result.CatalogVersion,
			Measures:       r.result.Query.Measures,
			Dimensions:     r.result.Query.Dimensions,
			Rows:           len(resp.Data),
		})
	}

	r.result.Stage = StageCompleted
	r.result.Success = true
	return s.finish(r)
}

// validateAndCompile advances r through validation and compilation. It
// records the failure on r and returns false when either stage fails.
func (s *queryService) validateAndCompile(r *run, raw map[string]any) bool {
	if r.cat == nil {
		r.stop(catalogUnavailable())
		return false
	}

	v := validator.New(r.cat, s.opts)
	validated, err := v.Validate(raw)
	if err != nil {
		s.auditInjection(r, err)
		r.stop(validationError(err))
		return false
	}
	r.result.ValidatedIntent = validated
	r.result.ResolvedDateRange = resolvedDateRange(validated)
	r.result.Stage = StageIntentValidated

	payload, err := compiler.Compile(validated)
	if err != nil {
		r.stop(&PipelineError{
			ErrorType: ErrorTypeCompilation,
			Message:   err.Error(),
			Details:   map[string]any{},
		})
		return false
	}
	r.result.Query = payload
	r.result.Stage = StageQueryCompiled
	return true
}

func (s *queryService) auditInjection(r *run, err error) {
	verr, ok := apperrors.AsValidationError(err)
	if !ok {
		return
	}
	fingerprint, ok := verr.InjectionFingerprint()
	if !ok {
		return
	}
	value, _ := verr.Value().(string)
	s.auditor.LogInjectionAttempt(r.ctx, r.result.RequestID, audit.InjectionDetails{
		Field:       verr.Field(),
		Value:       value,
		Fingerprint: fingerprint,
		Question:    logging.SanitizeQuestion(r.result.Question),
	})
}

// stop records perr against the last completed stage.
func (r *run) stop(perr *PipelineError) {
	perr.Stage = r.result.Stage
	r.result.Error = perr
}

func (s *queryService) fail(r *run, perr *PipelineError) *QueryResult {
	r.stop(perr)
	return s.finish(r)
}

func (s *queryService) finish(r *run) *QueryResult {
	r.result.DurationMs = time.Since(r.start).Milliseconds()

	if r.result.Error != nil {
		s.logger.Warn("Pipeline stopped",
			zap.String("request_id", r.result.RequestID),
			zap.String("stage", string(r.result.Stage)),
			zap.String("error_type", r.result.Error.ErrorType),
			zap.String("error_code", r.result.Error.ErrorCode),
			zap.Int64("duration_ms", r.result.DurationMs))
		return r.result
	}

	s.logger.Info("Pipeline completed",
		zap.String("request_id", r.result.RequestID),
		zap.String("catalog_version", r.result.CatalogVersion),
		zap.Int("rows", len(r.result.Data)),
		zap.Int64("duration_ms", r.result.DurationMs))
	return r.result
}

func resolvedDateRange(v *models.ValidatedIntent) []string {
	if v.TimeDimension == nil || v.TimeDimension.Range == nil {
		return nil
	}
	rng := v.TimeDimension.Range
	return []string{rng.Start.Format(catalog.DateLayout), rng.End.Format(catalog.DateLayout)}
}

func catalogUnavailable() *PipelineError {
	return &PipelineError{
		ErrorType: ErrorTypeCatalog,
		Message:   "no catalog loaded",
		Details:   map[string]any{},
	}
}

func validationError(err error) *PipelineError {
	verr, ok := apperrors.AsValidationError(err)
	if !ok {
		return &PipelineError{
			ErrorType: ErrorTypeInternal,
			Message:   err.Error(),
			Details:   map[string]any{},
		}
	}
	return &PipelineError{
		ErrorType: verr.ErrorType(),
		ErrorCode: string(verr.Code()),
		Message:   verr.Message(),
		Details:   verr.ToMap(),
	}
}

func extractionError(err error) *PipelineError {
	details := map[string]any{}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		details["llm_error_type"] = string(llmErr.Type)
		details["retryable"] = llmErr.Retryable
		if llmErr.StatusCode > 0 {
			details["status_code"] = llmErr.StatusCode
		}
	}
	if errors.Is(err, llm.ErrCircuitOpen) {
		details["circuit_open"] = true
	}
	return &PipelineError{
		ErrorType: ErrorTypeExtraction,
		Message:   logging.SanitizeError(err),
		Details:   details,
	}
}

func engineError(err error) *PipelineError {
	if errors.Is(err, cube.ErrQueryTooLarge) {
		return &PipelineError{
			ErrorType: ErrorTypeQueryTooLarge,
			Message:   err.Error(),
			Details:   map[string]any{},
		}
	}
	details := map[string]any{}
	var engErr *cube.EngineError
	if errors.As(err, &engErr) {
		details["retryable"] = engErr.Retryable || engErr.Pending
		if engErr.StatusCode > 0 {
			details["status_code"] = engErr.StatusCode
		}
	}
	return &PipelineError{
		ErrorType: ErrorTypeEngine,
		Message:   logging.SanitizeError(err),
		Details:   details,
	}
}
