package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a single intent validation failure condition.
type ErrorCode string

const (
	CodeMalformedIntent      ErrorCode = "MALFORMED_INTENT"
	CodeUnknownMetric        ErrorCode = "UNKNOWN_METRIC"
	CodeUnknownDimension     ErrorCode = "UNKNOWN_DIMENSION"
	CodeUnknownTimeDimension ErrorCode = "UNKNOWN_TIME_DIMENSION"
	CodeAmbiguousMetric      ErrorCode = "AMBIGUOUS_METRIC"
	CodeAmbiguousDimension   ErrorCode = "AMBIGUOUS_DIMENSION"
	CodeInvalidTimeWindow    ErrorCode = "INVALID_TIME_WINDOW"
	CodeInvalidTimeRange     ErrorCode = "INVALID_TIME_RANGE"
	CodeInvalidGranularity   ErrorCode = "INVALID_GRANULARITY"
	CodeInvalidFilter        ErrorCode = "INVALID_FILTER"
)

var errorTypeNames = map[ErrorCode]string{
	CodeMalformedIntent:      "MalformedIntentError",
	CodeUnknownMetric:        "UnknownMetricError",
	CodeUnknownDimension:     "UnknownDimensionError",
	CodeUnknownTimeDimension: "UnknownTimeDimensionError",
	CodeAmbiguousMetric:      "AmbiguousMetricError",
	CodeAmbiguousDimension:   "AmbiguousDimensionError",
	CodeInvalidTimeWindow:    "InvalidTimeWindowError",
	CodeInvalidTimeRange:     "InvalidTimeRangeError",
	CodeInvalidGranularity:   "InvalidGranularityError",
	CodeInvalidFilter:        "InvalidFilterError",
}

// AllErrorCodes lists every code in declaration order.
func AllErrorCodes() []ErrorCode {
	return []ErrorCode{
		CodeMalformedIntent,
		CodeUnknownMetric,
		CodeUnknownDimension,
		CodeUnknownTimeDimension,
		CodeAmbiguousMetric,
		CodeAmbiguousDimension,
		CodeInvalidTimeWindow,
		CodeInvalidTimeRange,
		CodeInvalidGranularity,
		CodeInvalidFilter,
	}
}

// Valid reports whether c is part of the closed taxonomy.
func (c ErrorCode) Valid() bool {
	_, ok := errorTypeNames[c]
	return ok
}

// ErrorType returns the stable type name exposed to presentation layers.
func (c ErrorCode) ErrorType() string {
	if name, ok := errorTypeNames[c]; ok {
		return name
	}
	return "ValidationError"
}

// ValidationError describes the first failing gate of an intent validation.
// Fields are unexported so a constructed error cannot be changed afterwards;
// accessors hand out copies.
type ValidationError struct {
	code        ErrorCode
	field       string
	value       any
	suggestions []string
	message     string
	metadata    map[string]any
}

func newValidationError(code ErrorCode, field string, value any, message string, suggestions []string, metadata map[string]any) *ValidationError {
	return &ValidationError{
		code:        code,
		field:       field,
		value:       value,
		suggestions: append([]string{}, suggestions...),
		message:     message,
		metadata:    copyMetadata(metadata),
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *ValidationError) Code() ErrorCode   { return e.code }
func (e *ValidationError) Field() string     { return e.field }
func (e *ValidationError) Value() any        { return e.value }
func (e *ValidationError) Message() string   { return e.message }
func (e *ValidationError) ErrorType() string { return e.code.ErrorType() }
func (e *ValidationError) Suggestions() []string {
	return append([]string{}, e.suggestions...)
}

func (e *ValidationError) Metadata() map[string]any {
	return copyMetadata(e.metadata)
}

// ToMap renders the error in its wire shape.
func (e *ValidationError) ToMap() map[string]any {
	var field any
	if e.field != "" {
		field = e.field
	}
	return map[string]any{
		"error_code":  string(e.code),
		"error_type":  e.code.ErrorType(),
		"message":     e.message,
		"field":       field,
		"value":       e.value,
		"suggestions": e.Suggestions(),
		"metadata":    e.Metadata(),
	}
}

func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func didYouMean(message string, suggestions []string, limit int) string {
	if len(suggestions) == 0 {
		return message
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return fmt.Sprintf("%s. Did you mean: %s?", message, strings.Join(suggestions, ", "))
}

// NewMalformedIntent reports a structural violation at field.
func NewMalformedIntent(field, reason string, value any) *ValidationError {
	return newValidationError(CodeMalformedIntent, field, value,
		"Malformed intent: "+reason, nil, nil)
}

func NewUnknownMetric(term string, suggestions []string) *ValidationError {
	msg := didYouMean(fmt.Sprintf("Unknown metric: '%s'", term), suggestions, 3)
	return newValidationError(CodeUnknownMetric, "metric", term, msg, suggestions, nil)
}

// NewUnknownDimension reports an unresolvable dimension. field is the intent
// location, e.g. "group_by[1]" or "filters[0].dimension".
func NewUnknownDimension(term, field string, suggestions []string) *ValidationError {
	msg := didYouMean(fmt.Sprintf("Unknown dimension in %s: '%s'", field, term), suggestions, 3)
	return newValidationError(CodeUnknownDimension, field, term, msg, suggestions,
		map[string]any{"context": field})
}

func NewUnknownTimeDimension(term string, suggestions []string) *ValidationError {
	msg := didYouMean(fmt.Sprintf("Unknown time dimension: '%s'", term), suggestions, 3)
	return newValidationError(CodeUnknownTimeDimension, "time_dimension.dimension", term, msg, suggestions, nil)
}

// NewAmbiguousMetric lists every candidate; none is preferred.
func NewAmbiguousMetric(term string, candidates []string) *ValidationError {
	msg := fmt.Sprintf("Ambiguous metric: '%s' matches %s", term, strings.Join(candidates, ", "))
	return newValidationError(CodeAmbiguousMetric, "metric", term, msg, candidates,
		map[string]any{"candidate_count": len(candidates)})
}

func NewAmbiguousDimension(term, field string, candidates []string) *ValidationError {
	msg := fmt.Sprintf("Ambiguous dimension in %s: '%s' matches %s", field, term, strings.Join(candidates, ", "))
	return newValidationError(CodeAmbiguousDimension, field, term, msg, candidates,
		map[string]any{"context": field, "candidate_count": len(candidates)})
}

func NewInvalidTimeWindow(window string, suggestions []string) *ValidationError {
	msg := fmt.Sprintf("Invalid time window: '%s'", window)
	if len(suggestions) > 0 {
		shown := suggestions
		if len(shown) > 5 {
			shown = shown[:5]
		}
		msg += ". Valid options: " + strings.Join(shown, ", ")
	}
	return newValidationError(CodeInvalidTimeWindow, "time_range.window", window, msg, suggestions, nil)
}

func NewInvalidTimeRange(field, reason string, value any) *ValidationError {
	return newValidationError(CodeInvalidTimeRange, field, value,
		"Invalid time range: "+reason, nil, nil)
}

// NewInvalidGranularity reports a granularity outside allowed.
func NewInvalidGranularity(granularity string, allowed []string) *ValidationError {
	msg := fmt.Sprintf("Invalid granularity: '%s'. Valid options: %s", granularity, strings.Join(allowed, ", "))
	return newValidationError(CodeInvalidGranularity, "time_dimension.granularity", granularity, msg, allowed, nil)
}

// NewInvalidFilter reports a bad filter at index. field is the exact location,
// e.g. "filters[2].value".
func NewInvalidFilter(index int, field, reason string, value any, suggestions []string) *ValidationError {
	return newValidationError(CodeInvalidFilter, field, value, reason, suggestions,
		map[string]any{"filter_index": index})
}

// NewInjectedFilterValue rejects a filter value that matched an injection
// pattern. The libinjection fingerprint is kept in the metadata.
func NewInjectedFilterValue(index int, field string, value any, fingerprint string) *ValidationError {
	return newValidationError(CodeInvalidFilter, field, value, "filter value contains a SQL injection pattern", nil,
		map[string]any{"filter_index": index, MetadataInjectionFingerprint: fingerprint})
}

// MetadataInjectionFingerprint is the metadata key set by NewInjectedFilterValue.
const MetadataInjectionFingerprint = "injection_fingerprint"

// InjectionFingerprint returns the fingerprint of an injection rejection.
func (e *ValidationError) InjectionFingerprint() (string, bool) {
	fp, ok := e.metadata[MetadataInjectionFingerprint].(string)
	return fp, ok
}
