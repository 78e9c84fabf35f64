package validator

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// Closed key sets of the intent document.
var (
	intentKeys        = keySet("intent_type", "metric", "group_by", "time_dimension", "time_range", "filters", "scope")
	timeDimensionKeys = keySet("dimension", "granularity")
	timeRangeKeys     = keySet("window", "start_date", "end_date")
	filterKeys        = keySet("dimension", "operator", "value")
)

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// Decode is the structural gate. It turns an untrusted document into a
// SnapshotIntent or TrendIntent, or reports the first structural violation as
// a MALFORMED_INTENT error. Checks run in a fixed order so the same input
// always yields the same error. raw is never modified.
func Decode(raw map[string]any) (models.Intent, error) {
	intent, verr := decode(raw)
	if verr != nil {
		return nil, verr
	}
	return intent, nil
}

func decode(raw map[string]any) (models.Intent, *apperrors.ValidationError) {
	if len(raw) == 0 {
		return nil, apperrors.NewMalformedIntent("", "intent is empty", nil)
	}
	if verr := checkKeys(raw, intentKeys, ""); verr != nil {
		return nil, verr
	}

	rawType, present := raw["intent_type"]
	if !present || rawType == nil {
		return nil, apperrors.NewMalformedIntent("intent_type", "intent_type is required", nil)
	}
	typeStr, ok := rawType.(string)
	if !ok {
		return nil, malformedType("intent_type", "a string", rawType)
	}
	intentType, ok := models.ParseIntentType(typeStr)
	if !ok {
		return nil, apperrors.NewMalformedIntent("intent_type",
			fmt.Sprintf("intent_type must be SNAPSHOT or TREND, got '%s'", typeStr), typeStr)
	}

	var body models.IntentBody
	var verr *apperrors.ValidationError

	if body.Metric, verr = requiredString(raw, "metric", "metric"); verr != nil {
		return nil, verr
	}
	if body.GroupBy, verr = decodeGroupBy(raw["group_by"]); verr != nil {
		return nil, verr
	}

	td, verr := decodeTimeDimension(raw["time_dimension"])
	if verr != nil {
		return nil, verr
	}
	tr, verr := decodeTimeRange(raw["time_range"])
	if verr != nil {
		return nil, verr
	}

	if body.Filters, verr = decodeFilters(raw["filters"]); verr != nil {
		return nil, verr
	}
	if body.Scope, verr = decodeScope(raw["scope"]); verr != nil {
		return nil, verr
	}

	if intentType == models.IntentTypeSnapshot {
		return models.SnapshotIntent{IntentBody: body, TimeDimension: td, TimeRange: tr}, nil
	}

	if td == nil {
		return nil, apperrors.NewMalformedIntent("time_dimension", "TREND intent requires time_dimension", nil)
	}
	if tr == nil {
		return nil, apperrors.NewMalformedIntent("time_range", "TREND intent requires time_range", nil)
	}
	return models.TrendIntent{IntentBody: body, TimeDimension: *td, TimeRange: *tr}, nil
}

// checkKeys rejects the alphabetically first key not in allowed.
func checkKeys(obj map[string]any, allowed map[string]bool, prefix string) *apperrors.ValidationError {
	var unknown []string
	for k := range obj {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	field := prefix + unknown[0]
	return apperrors.NewMalformedIntent(field, fmt.Sprintf("unknown field '%s'", field), obj[unknown[0]])
}

func requiredString(obj map[string]any, key, field string) (string, *apperrors.ValidationError) {
	v, present := obj[key]
	if !present || v == nil {
		return "", apperrors.NewMalformedIntent(field, field+" is required", nil)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformedType(field, "a string", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", apperrors.NewMalformedIntent(field, field+" must not be empty", s)
	}
	return s, nil
}

func optionalString(obj map[string]any, key, field string) (string, *apperrors.ValidationError) {
	v, present := obj[key]
	if !present || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", malformedType(field, "a string", v)
	}
	return strings.TrimSpace(s), nil
}

func malformedType(field, want string, got any) *apperrors.ValidationError {
	return apperrors.NewMalformedIntent(field,
		fmt.Sprintf("%s must be %s, got %s", field, want, jsonTypeName(got)), got)
}

func decodeGroupBy(v any) ([]string, *apperrors.ValidationError) {
	if v == nil {
		return []string{}, nil
	}
	if strs, ok := v.([]string); ok {
		items := make([]any, len(strs))
		for i, s := range strs {
			items[i] = s
		}
		v = items
	}
	items, ok := v.([]any)
	if !ok {
		return nil, malformedType("group_by", "a list of strings", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("group_by[%d]", i)
		s, ok := item.(string)
		if !ok {
			return nil, malformedType(field, "a string", item)
		}
		if strings.TrimSpace(s) == "" {
			return nil, apperrors.NewMalformedIntent(field, field+" must not be empty", s)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeTimeDimension(v any) (*models.TimeDimensionSpec, *apperrors.ValidationError) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformedType("time_dimension", "an object", v)
	}
	if verr := checkKeys(obj, timeDimensionKeys, "time_dimension."); verr != nil {
		return nil, verr
	}
	dim, verr := requiredString(obj, "dimension", "time_dimension.dimension")
	if verr != nil {
		return nil, verr
	}
	gran, verr := optionalString(obj, "granularity", "time_dimension.granularity")
	if verr != nil {
		return nil, verr
	}
	return &models.TimeDimensionSpec{Dimension: dim, Granularity: gran}, nil
}

func decodeTimeRange(v any) (*models.TimeRange, *apperrors.ValidationError) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformedType("time_range", "an object", v)
	}
	if verr := checkKeys(obj, timeRangeKeys, "time_range."); verr != nil {
		return nil, verr
	}

	var tr models.TimeRange
	var verr *apperrors.ValidationError
	if tr.Window, verr = optionalString(obj, "window", "time_range.window"); verr != nil {
		return nil, verr
	}
	if tr.StartDate, verr = optionalString(obj, "start_date", "time_range.start_date"); verr != nil {
		return nil, verr
	}
	if tr.EndDate, verr = optionalString(obj, "end_date", "time_range.end_date"); verr != nil {
		return nil, verr
	}

	hasDates := tr.StartDate != "" || tr.EndDate != ""
	switch {
	case tr.Window != "" && hasDates:
		return nil, apperrors.NewMalformedIntent("time_range",
			"cannot specify both window and explicit dates", nil)
	case tr.Window == "" && !hasDates:
		return nil, apperrors.NewMalformedIntent("time_range",
			"time_range requires either window or start_date and end_date", nil)
	case hasDates && tr.StartDate == "":
		return nil, apperrors.NewMalformedIntent("time_range.start_date",
			"explicit time_range requires both start_date and end_date", nil)
	case hasDates && tr.EndDate == "":
		return nil, apperrors.NewMalformedIntent("time_range.end_date",
			"explicit time_range requires both start_date and end_date", nil)
	}
	return &tr, nil
}

func decodeFilters(v any) ([]models.Filter, *apperrors.ValidationError) {
	if v == nil {
		return []models.Filter{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, malformedType("filters", "a list of objects", v)
	}
	out := make([]models.Filter, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("filters[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, malformedType(prefix, "an object", item)
		}
		if verr := checkKeys(obj, filterKeys, prefix+"."); verr != nil {
			return nil, verr
		}

		dim, verr := requiredString(obj, "dimension", prefix+".dimension")
		if verr != nil {
			return nil, verr
		}

		op := models.OperatorEquals
		opStr, verr := optionalString(obj, "operator", prefix+".operator")
		if verr != nil {
			return nil, verr
		}
		if opStr != "" {
			parsed, ok := models.ParseOperator(opStr)
			if !ok {
				return nil, apperrors.NewMalformedIntent(prefix+".operator",
					fmt.Sprintf("unsupported operator '%s'", opStr), opStr)
			}
			op = parsed
		}

		value, present := obj["value"]
		if !present || value == nil {
			return nil, apperrors.NewMalformedIntent(prefix+".value", prefix+".value is required", nil)
		}
		if verr := checkValueType(op, value, prefix+".value"); verr != nil {
			return nil, verr
		}

		out = append(out, models.Filter{Dimension: dim, Operator: op, Value: value})
	}
	return out, nil
}

// checkStructure repeats the structural gate for intents that did not come
// through decode.
func checkStructure(intent models.Intent) *apperrors.ValidationError {
	if intent == nil {
		return apperrors.NewMalformedIntent("", "intent is required", nil)
	}
	body := intent.Body()
	if _, err := body.Scope.MarshalText(); err != nil {
		return apperrors.NewMalformedIntent("scope", err.Error(), int(body.Scope))
	}
	for i, f := range body.Filters {
		prefix := fmt.Sprintf("filters[%d]", i)
		if !slices.Contains(models.Operators(), f.Operator) {
			return apperrors.NewMalformedIntent(prefix+".operator",
				fmt.Sprintf("unsupported operator '%s'", f.Operator), string(f.Operator))
		}
		if f.Value == nil {
			return apperrors.NewMalformedIntent(prefix+".value", prefix+".value is required", nil)
		}
		if verr := checkValueType(f.Operator, f.Value, prefix+".value"); verr != nil {
			return verr
		}
	}
	return nil
}

// checkValueType enforces the JSON type an operator expects. Cardinality and
// content are checked later by the filter gate.
func checkValueType(op models.Operator, value any, field string) *apperrors.ValidationError {
	switch op.Shape() {
	case models.ShapeScalar:
		if !isScalar(value) {
			return apperrors.NewMalformedIntent(field,
				fmt.Sprintf("operator '%s' requires a single value, got %s", op, jsonTypeName(value)), value)
		}
	case models.ShapeList, models.ShapePair:
		items, ok := value.([]any)
		if !ok {
			return apperrors.NewMalformedIntent(field,
				fmt.Sprintf("operator '%s' requires a list of values, got %s", op, jsonTypeName(value)), value)
		}
		for j, item := range items {
			if !isScalar(item) {
				return malformedType(fmt.Sprintf("%s[%d]", field, j), "a scalar", item)
			}
		}
	}
	return nil
}

func decodeScope(v any) (models.Scope, *apperrors.ValidationError) {
	if v == nil {
		return models.ScopeUnspecified, nil
	}
	s, ok := v.(string)
	if !ok {
		return models.ScopeUnspecified, malformedType("scope", "a string", v)
	}
	scope, err := models.ParseScope(s)
	if err != nil {
		return models.ScopeUnspecified, apperrors.NewMalformedIntent("scope", err.Error(), s)
	}
	return scope, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
