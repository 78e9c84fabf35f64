package validator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/testhelpers"
)

var fixedNow = time.Date(2024, time.May, 15, 13, 45, 0, 0, time.UTC)

func newTestValidator(t *testing.T, mutate ...func(*Options)) *Validator {
	t.Helper()
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	for _, m := range mutate {
		m(&opts)
	}
	return New(testhelpers.SalesCatalog(t), opts)
}

// parseIntent decodes JSON the way the HTTP layer does.
func parseIntent(t *testing.T, doc string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return raw
}

func requireValidationError(t *testing.T, err error, code apperrors.ErrorCode, field string) *apperrors.ValidationError {
	t.Helper()
	require.Error(t, err)
	verr, ok := apperrors.AsValidationError(err)
	require.True(t, ok, "expected ValidationError, got %T: %v", err, err)
	assert.Equal(t, code, verr.Code(), verr.Message())
	assert.Equal(t, field, verr.Field(), verr.Message())
	return verr
}

func TestValidate_SnapshotWithAliases(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "snapshot",
		"metric": "Units Sold",
		"group_by": ["zone", "Product Brand", "region"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, models.IntentTypeSnapshot, got.Type)
	assert.Equal(t, "total_quantity", got.Metric)
	assert.Equal(t, []string{"region", "brand"}, got.GroupBy)
	assert.Nil(t, got.TimeDimension)
	assert.Empty(t, got.Filters)
	assert.NotNil(t, got.Filters)
}

func TestValidate_AmbiguousMetric(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{"intent_type": "SNAPSHOT", "metric": "sales"}`))
	verr := requireValidationError(t, err, apperrors.CodeAmbiguousMetric, "metric")
	assert.Equal(t, []string{"primary_sales", "secondary_sales"}, verr.Suggestions())
	assert.Equal(t, "AmbiguousMetric", verr.ErrorType())
}

func TestValidate_ScopeResolvesAmbiguity(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "sales",
		"group_by": ["partner"],
		"scope": "secondary"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "secondary_sales", got.Metric)
	assert.Equal(t, []string{"retailer_name"}, got.GroupBy)
	assert.Equal(t, models.ScopeSecondary, got.Scope)
}

func TestValidate_TrendMissingTimeFields(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{"intent_type": "TREND", "metric": "total_quantity"}`))
	requireValidationError(t, err, apperrors.CodeMalformedIntent, "time_dimension")

	_, err = v.Validate(parseIntent(t, `{
		"intent_type": "TREND",
		"metric": "total_quantity",
		"time_dimension": {"dimension": "invoice_date", "granularity": "month"}
	}`))
	requireValidationError(t, err, apperrors.CodeMalformedIntent, "time_range")

}

func TestValidate_TrendGranularityIsOptional(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "TREND",
		"metric": "total_quantity",
		"time_dimension": {"dimension": "invoice_date"},
		"time_range": {"window": "last_7_days"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, models.IntentTypeTrend, got.Type)
	require.NotNil(t, got.TimeDimension)
	assert.Equal(t, "invoice_date", got.TimeDimension.Dimension)
	assert.Empty(t, got.TimeDimension.Granularity)
	require.NotNil(t, got.TimeDimension.Range)
}

func TestValidate_UnknownWindowSuggestsNearest(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"time_dimension": {"dimension": "invoice_date"},
		"time_range": {"window": "last_2_weeks"}
	}`))
	verr := requireValidationError(t, err, apperrors.CodeInvalidTimeWindow, "time_range.window")
	suggestions := verr.Suggestions()
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 5)
	assert.Equal(t, "last_7_days", suggestions[0])
	assert.Contains(t, suggestions, "last_30_days")
}

func TestValidate_UnknownFilterDimension(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"filters": [{"dimension": "country", "operator": "equals", "value": "India"}]
	}`))
	verr := requireValidationError(t, err, apperrors.CodeUnknownDimension, "filters[0].dimension")
	assert.Equal(t, "country", verr.Value())
}

func TestValidate_TrendResolvesWindow(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "TREND",
		"metric": "volume",
		"time_dimension": {"dimension": "billing date", "granularity": "Month"},
		"time_range": {"window": "Last 7 Days"}
	}`))
	require.NoError(t, err)
	require.NotNil(t, got.TimeDimension)
	assert.Equal(t, "invoice_date", got.TimeDimension.Dimension)
	assert.Equal(t, models.GranularityMonth, got.TimeDimension.Granularity)

	r := got.TimeDimension.Range
	require.NotNil(t, r)
	assert.Equal(t, "last_7_days", r.Window)
	assert.Equal(t, "last 7 days", r.EngineRange)
	assert.Equal(t, "2024-05-08", r.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-05-15", r.End.Format("2006-01-02"))
}

func TestValidate_ExplicitDateRange(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"time_dimension": {"dimension": "order_date"},
		"time_range": {"start_date": "2024-01-01", "end_date": "2024-03-31T10:00:00Z"}
	}`))
	require.NoError(t, err)
	r := got.TimeDimension.Range
	require.NotNil(t, r)
	assert.False(t, r.IsNamed())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), r.End)
}

func TestValidate_TimeErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		code  apperrors.ErrorCode
		field string
	}{
		{
			name: "unknown time dimension",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_dimension": {"dimension": "ship_date"}, "time_range": {"window": "today"}}`,
			code: apperrors.CodeUnknownTimeDimension, field: "time_dimension.dimension",
		},
		{
			name: "unsupported granularity",
			doc: `{"intent_type": "TREND", "metric": "total_quantity",
				"time_dimension": {"dimension": "order_date", "granularity": "year"}, "time_range": {"window": "today"}}`,
			code: apperrors.CodeInvalidGranularity, field: "time_dimension.granularity",
		},
		{
			name: "unknown granularity",
			doc: `{"intent_type": "TREND", "metric": "total_quantity",
				"time_dimension": {"dimension": "invoice_date", "granularity": "fortnight"}, "time_range": {"window": "today"}}`,
			code: apperrors.CodeInvalidGranularity, field: "time_dimension.granularity",
		},
		{
			name: "bad start date",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_range": {"start_date": "2024-13-01", "end_date": "2024-12-31"}}`,
			code: apperrors.CodeInvalidTimeRange, field: "time_range.start_date",
		},
		{
			name: "bad end date",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_range": {"start_date": "2024-01-01", "end_date": "yesterday"}}`,
			code: apperrors.CodeInvalidTimeRange, field: "time_range.end_date",
		},
		{
			name: "start after end",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_range": {"start_date": "2024-06-01", "end_date": "2024-05-01"}}`,
			code: apperrors.CodeInvalidTimeRange, field: "time_range",
		},
		{
			name: "window and dates together",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_range": {"window": "today", "start_date": "2024-06-01"}}`,
			code: apperrors.CodeMalformedIntent, field: "time_range",
		},
		{
			name: "half explicit range",
			doc: `{"intent_type": "SNAPSHOT", "metric": "total_quantity",
				"time_range": {"end_date": "2024-06-01"}}`,
			code: apperrors.CodeMalformedIntent, field: "time_range.start_date",
		},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(parseIntent(t, tt.doc))
			requireValidationError(t, err, tt.code, tt.field)
		})
	}
}

func TestValidate_SnapshotTimePolicy(t *testing.T) {
	rangeOnly := `{"intent_type": "SNAPSHOT", "metric": "total_quantity", "time_range": {"window": "yesterday"}}`
	noTime := `{"intent_type": "SNAPSHOT", "metric": "total_quantity"}`

	t.Run("default dimension fills a bare range", func(t *testing.T) {
		v := newTestValidator(t)
		got, err := v.Validate(parseIntent(t, rangeOnly))
		require.NoError(t, err)
		require.NotNil(t, got.TimeDimension)
		assert.Equal(t, "invoice_date", got.TimeDimension.Dimension)
		assert.Equal(t, "yesterday", got.TimeDimension.Range.Window)
	})

	t.Run("default dimension disabled", func(t *testing.T) {
		v := newTestValidator(t, func(o *Options) { o.UseCatalogDefaultTimeDimension = false })
		_, err := v.Validate(parseIntent(t, rangeOnly))
		requireValidationError(t, err, apperrors.CodeMalformedIntent, "time_dimension")
	})

	t.Run("untimed snapshot allowed by default", func(t *testing.T) {
		v := newTestValidator(t)
		got, err := v.Validate(parseIntent(t, noTime))
		require.NoError(t, err)
		assert.Nil(t, got.TimeDimension)
	})

	t.Run("untimed snapshot rejected when required", func(t *testing.T) {
		v := newTestValidator(t, func(o *Options) { o.RequireSnapshotTimeRange = true })
		_, err := v.Validate(parseIntent(t, noTime))
		requireValidationError(t, err, apperrors.CodeMalformedIntent, "time_range")
	})
}

func TestValidate_Filters(t *testing.T) {
	v := newTestValidator(t)

	got, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"filters": [
			{"dimension": "zone", "value": "north"},
			{"dimension": "channel", "operator": "not in", "value": ["retail"]},
			{"dimension": "brand", "operator": "contains", "value": "Cola"},
			{"dimension": "date", "operator": "date_range", "value": ["2024-01-01", "2024-01-31"]},
			{"dimension": "order_date", "operator": "greater_than", "value": "2024-02-01"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, got.Filters, 5)

	assert.Equal(t, models.ResolvedFilter{Dimension: "region", Operator: models.OperatorEquals, Value: "North"}, got.Filters[0])
	assert.Equal(t, models.ResolvedFilter{Dimension: "outlet_type", Operator: models.OperatorNotIn, Value: []any{"Retail"}}, got.Filters[1])
	assert.Equal(t, "brand", got.Filters[2].Dimension)
	assert.Equal(t, "Cola", got.Filters[2].Value)

	assert.Equal(t, "invoice_date", got.Filters[3].Dimension)
	assert.Equal(t, []any{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}, got.Filters[3].Value)

	assert.Equal(t, "order_date", got.Filters[4].Dimension)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got.Filters[4].Value)
}

func TestValidate_FilterErrors(t *testing.T) {
	tests := []struct {
		name    string
		filters string
		code    apperrors.ErrorCode
		field   string
	}{
		{"ambiguous dimension", `[{"dimension": "partner", "value": "Acme"}]`,
			apperrors.CodeAmbiguousDimension, "filters[0].dimension"},
		{"unknown possible value", `[{"dimension": "region", "value": "Central"}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"empty string", `[{"dimension": "brand", "value": "  "}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"empty list", `[{"dimension": "brand", "operator": "in", "value": []}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"comparison needs number", `[{"dimension": "brand", "operator": "greater_than", "value": "big"}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"date range needs two bounds", `[{"dimension": "invoice_date", "operator": "date_range", "value": ["2024-01-01"]}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"date range bound not a date", `[{"dimension": "invoice_date", "operator": "date_range", "value": ["2024-01-01", "soon"]}]`,
			apperrors.CodeInvalidFilter, "filters[0].value[1]"},
		{"date range reversed", `[{"dimension": "invoice_date", "operator": "date_range", "value": ["2024-02-01", "2024-01-01"]}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"date range on plain dimension", `[{"dimension": "region", "operator": "date_range", "value": ["2024-01-01", "2024-01-31"]}]`,
			apperrors.CodeUnknownDimension, "filters[0].dimension"},
		{"contains on time dimension", `[{"dimension": "invoice_date", "operator": "contains", "value": "2024"}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"sql injection", `[{"dimension": "brand", "value": "' OR '1'='1"}]`,
			apperrors.CodeInvalidFilter, "filters[0].value"},
		{"injection inside list", `[{"dimension": "brand", "operator": "in", "value": ["Cola", "'; DROP TABLE users--"]}]`,
			apperrors.CodeInvalidFilter, "filters[0].value[1]"},
		{"second filter fails", `[{"dimension": "brand", "value": "Cola"}, {"dimension": "country", "value": "India"}]`,
			apperrors.CodeUnknownDimension, "filters[1].dimension"},
		{"scalar operator with list", `[{"dimension": "brand", "operator": "equals", "value": ["a", "b"]}]`,
			apperrors.CodeMalformedIntent, "filters[0].value"},
		{"unsupported operator", `[{"dimension": "brand", "operator": "like", "value": "a"}]`,
			apperrors.CodeMalformedIntent, "filters[0].operator"},
		{"missing value", `[{"dimension": "brand"}]`,
			apperrors.CodeMalformedIntent, "filters[0].value"},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"intent_type": "SNAPSHOT", "metric": "total_quantity", "filters": ` + tt.filters + `}`
			_, err := v.Validate(parseIntent(t, doc))
			requireValidationError(t, err, tt.code, tt.field)
		})
	}
}

func TestValidate_PossibleValueSuggestions(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"filters": [{"dimension": "region", "value": "Nort"}]
	}`))
	verr := requireValidationError(t, err, apperrors.CodeInvalidFilter, "filters[0].value")
	assert.Equal(t, []string{"North"}, verr.Suggestions())
	assert.Equal(t, 0, verr.Metadata()["filter_index"])
}

func TestValidate_FailFastOrder(t *testing.T) {
	v := newTestValidator(t)

	// Every gate would fail; only the earliest is reported.
	doc := `{
		"intent_type": "SNAPSHOT",
		"metric": "revenue",
		"group_by": ["country"],
		"time_dimension": {"dimension": "ship_date"},
		"time_range": {"window": "last_2_weeks"},
		"filters": [{"dimension": "planet", "value": "Mars"}]
	}`
	_, err := v.Validate(parseIntent(t, doc))
	requireValidationError(t, err, apperrors.CodeUnknownMetric, "metric")

	doc = `{
		"intent_type": "SNAPSHOT",
		"metric": "volume",
		"group_by": ["region", "country"],
		"time_range": {"window": "last_2_weeks"},
		"filters": [{"dimension": "planet", "value": "Mars"}]
	}`
	_, err = v.Validate(parseIntent(t, doc))
	requireValidationError(t, err, apperrors.CodeUnknownDimension, "group_by[1]")

	doc = `{
		"intent_type": "SNAPSHOT",
		"metric": "volume",
		"time_range": {"window": "last_2_weeks"},
		"filters": [{"dimension": "planet", "value": "Mars"}]
	}`
	_, err = v.Validate(parseIntent(t, doc))
	requireValidationError(t, err, apperrors.CodeInvalidTimeWindow, "time_range.window")

	// Structural problems beat catalog problems.
	doc = `{"intent_type": "TREND", "metric": "revenue"}`
	_, err = v.Validate(parseIntent(t, doc))
	requireValidationError(t, err, apperrors.CodeMalformedIntent, "time_dimension")
}

func TestValidate_Deterministic(t *testing.T) {
	v := newTestValidator(t)
	doc := `{"intent_type": "SNAPSHOT", "metric": "revenu", "group_by": ["region"]}`

	_, first := v.Validate(parseIntent(t, doc))
	for i := 0; i < 5; i++ {
		_, again := v.Validate(parseIntent(t, doc))
		assert.Equal(t, first.(*apperrors.ValidationError).ToMap(), again.(*apperrors.ValidationError).ToMap())
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	v := newTestValidator(t)
	raw := parseIntent(t, `{"intent_type": "SNAPSHOT", "metric": "volume", "group_by": ["zone"],
		"filters": [{"dimension": "zone", "operator": "in", "value": ["north"]}]}`)
	before, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = v.Validate(raw)
	require.NoError(t, err)

	after, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestValidate_InjectionFingerprint(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"filters": [{"dimension": "brand", "operator": "in", "value": ["Cola", "'; DROP TABLE users--"]}]
	}`))
	verr := requireValidationError(t, err, apperrors.CodeInvalidFilter, "filters[0].value[1]")
	fp, ok := verr.InjectionFingerprint()
	assert.True(t, ok)
	assert.NotEmpty(t, fp)
	assert.Equal(t, "'; DROP TABLE users--", verr.Value())

	_, err = v.Validate(parseIntent(t, `{
		"intent_type": "SNAPSHOT",
		"metric": "total_quantity",
		"filters": [{"dimension": "region", "value": "Nort"}]
	}`))
	verr = requireValidationError(t, err, apperrors.CodeInvalidFilter, "filters[0].value")
	_, ok = verr.InjectionFingerprint()
	assert.False(t, ok)
}

func TestValidateIntent_RechecksStructure(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name   string
		intent models.Intent
		field  string
	}{
		{
			name: "unknown operator",
			intent: models.SnapshotIntent{IntentBody: models.IntentBody{
				Metric:  "total_quantity",
				Filters: []models.Filter{{Dimension: "brand", Operator: "bogus", Value: "Cola"}},
			}},
			field: "filters[0].operator",
		},
		{
			name: "missing value",
			intent: models.SnapshotIntent{IntentBody: models.IntentBody{
				Metric:  "total_quantity",
				Filters: []models.Filter{{Dimension: "brand", Operator: models.OperatorEquals}},
			}},
			field: "filters[0].value",
		},
		{
			name: "list operator with scalar value",
			intent: models.SnapshotIntent{IntentBody: models.IntentBody{
				Metric:  "total_quantity",
				Filters: []models.Filter{{Dimension: "brand", Operator: models.OperatorIn, Value: "Cola"}},
			}},
			field: "filters[0].value",
		},
		{
			name: "out of range scope",
			intent: models.SnapshotIntent{IntentBody: models.IntentBody{
				Metric: "total_quantity",
				Scope:  models.Scope(99),
			}},
			field: "scope",
		},
		{
			name:   "nil intent",
			intent: nil,
			field:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := v.ValidateIntent(tt.intent)
			assert.Nil(t, out)
			requireValidationError(t, err, apperrors.CodeMalformedIntent, tt.field)
		})
	}
}

func TestValidateIntent_AcceptsHandBuiltIntent(t *testing.T) {
	v := newTestValidator(t)

	out, err := v.ValidateIntent(models.SnapshotIntent{IntentBody: models.IntentBody{
		Metric:  "total_quantity",
		GroupBy: []string{"region"},
		Filters: []models.Filter{{Dimension: "brand", Operator: models.OperatorIn, Value: []any{"Cola"}}},
	}})
	require.NoError(t, err)
	require.Len(t, out.Filters, 1)
	assert.Equal(t, models.OperatorIn, out.Filters[0].Operator)
}
