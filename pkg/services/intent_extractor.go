package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/logging"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/prompts"
	"github.com/ekaya-inc/intentgate/pkg/retry"
)

// ErrExtraction marks a technical failure to obtain an intent object from the
// model: transport errors, empty answers, or output that is not a JSON object.
// Whether the object makes sense is left to the validator.
var ErrExtraction = errors.New("intent extraction failed")

// IntentExtractor turns a natural-language question into an untrusted intent
// document.
type IntentExtractor interface {
	Extract(ctx context.Context, cat *catalog.Catalog, question string) (map[string]any, error)
}

// ExtractorConfig tunes the model call.
type ExtractorConfig struct {
	Temperature float64
	RetryDelay  time.Duration
}

type intentExtractor struct {
	client llm.LLMClient
	cfg    ExtractorConfig
	logger *zap.Logger
}

// NewIntentExtractor creates an extractor backed by client.
func NewIntentExtractor(client llm.LLMClient, cfg ExtractorConfig, logger *zap.Logger) IntentExtractor {
	return &intentExtractor{
		client: client,
		cfg:    cfg,
		logger: logger.Named("intent-extractor"),
	}
}

var _ IntentExtractor = (*intentExtractor)(nil)

func (e *intentExtractor) Extract(ctx context.Context, cat *catalog.Catalog, question string) (map[string]any, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrExtraction)
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: no catalog loaded", ErrExtraction)
	}

	prompt := prompts.BuildIntentExtractionPrompt(CatalogContext(cat), question)
	systemMessage := prompts.IntentExtractionSystemMessage()

	retryCfg := retry.Once(e.cfg.RetryDelay)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.logger.Warn("Retrying intent extraction",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}

	start := time.Now()
	result, err := retry.DoWithResult(ctx, retryCfg, func(ctx context.Context) (*llm.GenerateResponseResult, error) {
		return e.client.GenerateResponse(ctx, prompt, systemMessage, e.cfg.Temperature)
	})
	if err != nil {
		e.logger.Error("LLM call failed",
			zap.String("model", e.client.GetModel()),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	e.logger.Debug("LLM response received",
		zap.String("model", e.client.GetModel()),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	raw, err := parseIntentObject(result.Content)
	if err != nil {
		e.logger.Warn("LLM returned unusable output",
			zap.String("content", logging.TruncateString(result.Content, logging.MaxQuestionLogLength)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return raw, nil
}

// parseIntentObject decodes the first JSON object in content. Numbers stay
// json.Number so the validator sees exactly what the model wrote.
func parseIntentObject(content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("empty response")
	}
	jsonStr, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode intent object: %w", err)
	}
	if raw == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return raw, nil
}

// CatalogContext projects the catalog onto what the extraction prompt shows.
func CatalogContext(cat *catalog.Catalog) prompts.CatalogContext {
	out := prompts.CatalogContext{
		Version:              cat.Version(),
		DefaultTimeDimension: cat.DefaultTimeDimension(),
		Metrics:              entryContexts(cat.Entries(models.CategoryMetric)),
		Dimensions:           entryContexts(cat.Entries(models.CategoryDimension)),
		TimeDimensions:       entryContexts(cat.Entries(models.CategoryTimeDimension)),
	}
	for _, w := range cat.TimeWindows() {
		out.TimeWindows = append(out.TimeWindows, w.Name)
	}
	return out
}

func entryContexts(entries []*catalog.Entry) []prompts.EntryContext {
	out := make([]prompts.EntryContext, 0, len(entries))
	for _, e := range entries {
		ec := prompts.EntryContext{
			ID:             e.ID,
			DisplayName:    e.DisplayName,
			Description:    e.Description,
			Aliases:        append([]string(nil), e.Aliases...),
			PossibleValues: append([]string(nil), e.PossibleValues...),
		}
		for _, s := range e.Scopes {
			ec.Scopes = append(ec.Scopes, s.String())
		}
		for _, g := range e.Granularities {
			ec.Granularities = append(ec.Granularities, string(g))
		}
		out = append(out, ec)
	}
	return out
}
