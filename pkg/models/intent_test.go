package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentType(t *testing.T) {
	tests := []struct {
		input  string
		want   IntentType
		wantOK bool
	}{
		{"SNAPSHOT", IntentTypeSnapshot, true},
		{"trend", IntentTypeTrend, true},
		{" Trend ", IntentTypeTrend, true},
		{"ranking", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseIntentType(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		input     string
		want      Operator
		wantShape ValueShape
		wantOK    bool
	}{
		{"equals", OperatorEquals, ShapeScalar, true},
		{"Not Equals", OperatorNotEquals, ShapeScalar, true},
		{"in", OperatorIn, ShapeList, true},
		{"not-in", OperatorNotIn, ShapeList, true},
		{"date_range", OperatorDateRange, ShapePair, true},
		{"greater_than", OperatorGreaterThan, ShapeScalar, true},
		{"between", "", ShapeScalar, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseOperator(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, tt.wantShape, got.Shape())
			}
		})
	}

	for _, op := range Operators() {
		parsed, ok := ParseOperator(string(op))
		assert.True(t, ok, op)
		assert.Equal(t, op, parsed)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, g := range Granularities() {
		parsed, ok := ParseGranularity(string(g))
		assert.True(t, ok)
		assert.Equal(t, g, parsed)
	}

	got, ok := ParseGranularity("MONTH")
	assert.True(t, ok)
	assert.Equal(t, GranularityMonth, got)

	_, ok = ParseGranularity("hourly")
	assert.False(t, ok)

	assert.Equal(t, []string{"day", "week", "month", "quarter", "year"}, GranularityNames())
}

func TestScope_TotalMapping(t *testing.T) {
	for _, s := range Scopes() {
		assert.NotEmpty(t, s.String(), "scope %d has no name", int(s))
		parsed, err := ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeUnspecified, s)

	_, err = ParseScope("tertiary")
	assert.Error(t, err)
}

func TestScope_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Scope Scope `json:"scope"`
	}{ScopeSecondary})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope":"secondary"}`, string(data))

	var decoded struct {
		Scope Scope `json:"scope"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"PRIMARY"}`), &decoded))
	assert.Equal(t, ScopePrimary, decoded.Scope)
}

func TestCategory_RoundTrip(t *testing.T) {
	for _, c := range Categories() {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCategory("measure")
	assert.Error(t, err)
}

func TestIntent_AccessorsReturnCopies(t *testing.T) {
	snap := SnapshotIntent{
		IntentBody: IntentBody{Metric: "total_quantity", GroupBy: []string{"region"}},
		TimeRange:  &TimeRange{Window: "last_7_days"},
	}

	body := snap.Body()
	body.GroupBy[0] = "brand"
	assert.Equal(t, "region", snap.GroupBy[0])

	td, tr := snap.Time()
	assert.Nil(t, td)
	require.NotNil(t, tr)
	tr.Window = "yesterday"
	assert.Equal(t, "last_7_days", snap.TimeRange.Window)

	trend := TrendIntent{
		IntentBody:    IntentBody{Metric: "total_quantity"},
		TimeDimension: TimeDimensionSpec{Dimension: "invoice_date", Granularity: "day"},
		TimeRange:     TimeRange{StartDate: "2024-01-01", EndDate: "2024-01-31"},
	}
	td, tr = trend.Time()
	require.NotNil(t, td)
	require.NotNil(t, tr)
	assert.False(t, tr.IsNamed())
	assert.Equal(t, IntentTypeTrend, trend.Type())

	intents := []Intent{snap, trend}
	assert.Len(t, intents, 2)
}
