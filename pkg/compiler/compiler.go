// Package compiler translates a ValidatedIntent into the semantic-query
// engine's request payload. It performs no lookups: every id it sees has
// already been resolved against the catalog.
package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/jsonutil"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// Engine operator names.
const (
	EngineEquals      = "equals"
	EngineNotEquals   = "notEquals"
	EngineContains    = "contains"
	EngineGreaterThan = "gt"
	EngineLessThan    = "lt"
	EngineInDateRange = "inDateRange"
)

var engineOperators = map[models.Operator]string{
	models.OperatorEquals:      EngineEquals,
	models.OperatorNotEquals:   EngineNotEquals,
	models.OperatorIn:          EngineEquals,
	models.OperatorNotIn:       EngineNotEquals,
	models.OperatorContains:    EngineContains,
	models.OperatorGreaterThan: EngineGreaterThan,
	models.OperatorLessThan:    EngineLessThan,
	models.OperatorDateRange:   EngineInDateRange,
}

// EngineOperator returns the engine name for op.
func EngineOperator(op models.Operator) (string, bool) {
	name, ok := engineOperators[op]
	return name, ok
}

// Compile builds the payload for v. It only fails when v could not have come
// from the validator; such errors wrap apperrors.ErrInvariantBreach.
func Compile(v *models.ValidatedIntent) (*models.QueryPayload, error) {
	if v == nil {
		return nil, breach("validated intent is nil")
	}
	if v.Metric == "" {
		return nil, breach("metric is empty")
	}

	payload := &models.QueryPayload{
		Measures:       []string{v.Metric},
		Dimensions:     make([]string, 0, len(v.GroupBy)),
		TimeDimensions: []models.TimeDimensionQuery{},
		Filters:        make([]models.FilterQuery, 0, len(v.Filters)),
	}

	for i, dim := range v.GroupBy {
		if dim == "" {
			return nil, breach("group_by[%d] is empty", i)
		}
		payload.Dimensions = append(payload.Dimensions, dim)
	}

	if td := v.TimeDimension; td != nil {
		if td.Dimension == "" {
			return nil, breach("time dimension is empty")
		}
		q := models.TimeDimensionQuery{
			Dimension:   td.Dimension,
			Granularity: string(td.Granularity),
		}
		if r := td.Range; r != nil {
			q.DateRange = DateRange(*r)
		}
		payload.TimeDimensions = append(payload.TimeDimensions, q)
	}

	for i, f := range v.Filters {
		fq, err := compileFilter(f)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		payload.Filters = append(payload.Filters, fq)
	}

	return payload, nil
}

// DateRange renders a resolved range for the engine: the window's native
// phrase when it has one, otherwise the [start, end] dates.
func DateRange(r models.ResolvedTimeRange) any {
	if r.IsNamed() && r.EngineRange != "" {
		return r.EngineRange
	}
	return []string{formatDate(r.Start), formatDate(r.End)}
}

func compileFilter(f models.ResolvedFilter) (models.FilterQuery, error) {
	if f.Dimension == "" {
		return models.FilterQuery{}, breach("filter dimension is empty")
	}
	op, ok := engineOperators[f.Operator]
	if !ok {
		return models.FilterQuery{}, breach("unsupported operator '%s'", f.Operator)
	}

	var raw []any
	switch val := f.Value.(type) {
	case []any:
		raw = val
	case []string:
		raw = make([]any, len(val))
		for i, s := range val {
			raw[i] = s
		}
	default:
		raw = []any{val}
	}
	if len(raw) == 0 {
		return models.FilterQuery{}, breach("filter on %s has no values", f.Dimension)
	}
	if f.Operator == models.OperatorDateRange && len(raw) != 2 {
		return models.FilterQuery{}, breach("date range on %s needs two bounds, got %d", f.Dimension, len(raw))
	}

	values := make([]string, len(raw))
	for i, item := range raw {
		s, ok := jsonutil.ScalarString(item)
		if !ok {
			return models.FilterQuery{}, breach("filter value %v on %s is not a scalar", item, f.Dimension)
		}
		values[i] = s
	}
	return models.FilterQuery{Member: f.Dimension, Operator: op, Values: values}, nil
}

func formatDate(t time.Time) string {
	return t.Format(jsonutil.DateLayout)
}

func breach(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvariantBreach, fmt.Sprintf(format, args...))
}

// MarshalPayload encodes p deterministically. HTML escaping is off so values
// such as "A&B" reach the engine unchanged.
func MarshalPayload(p *models.QueryPayload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
