package models

import (
	"strings"
	"time"
)

// IntentType values
type IntentType string

const (
	IntentTypeSnapshot IntentType = "SNAPSHOT" // Point-in-time aggregate, no series required
	IntentTypeTrend    IntentType = "TREND"    // Metric series over a time dimension
)

// ParseIntentType accepts either case ("trend" and "TREND" are equivalent).
func ParseIntentType(s string) (IntentType, bool) {
	switch IntentType(strings.ToUpper(strings.TrimSpace(s))) {
	case IntentTypeSnapshot:
		return IntentTypeSnapshot, true
	case IntentTypeTrend:
		return IntentTypeTrend, true
	}
	return "", false
}

// Granularity is the bucket size of a time series.
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// Granularities returns the supported granularities from finest to coarsest.
func Granularities() []Granularity {
	return []Granularity{GranularityDay, GranularityWeek, GranularityMonth, GranularityQuarter, GranularityYear}
}

// GranularityNames is Granularities as strings.
func GranularityNames() []string {
	gs := Granularities()
	names := make([]string, len(gs))
	for i, g := range gs {
		names[i] = string(g)
	}
	return names
}

func ParseGranularity(s string) (Granularity, bool) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Granularities() {
		if g == known {
			return g, true
		}
	}
	return "", false
}

// TimeDimensionSpec names the date field an intent groups or filters on.
// Granularity is the raw requested value and may be empty.
type TimeDimensionSpec struct {
	Dimension   string `json:"dimension"`
	Granularity string `json:"granularity,omitempty"`
}

// TimeRange is either a named window or an explicit start/end pair.
// Exactly one form is populated.
type TimeRange struct {
	Window    string `json:"window,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// IsNamed reports whether the range refers to a catalog time window.
func (r TimeRange) IsNamed() bool {
	return r.Window != ""
}

// Filter is a single untrusted filter condition. Value holds the decoded JSON
// value: a scalar (string, json.Number, bool) or a []any for list operators.
type Filter struct {
	Dimension string   `json:"dimension"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// IntentBody holds the fields shared by every intent variant.
type IntentBody struct {
	Metric  string   `json:"metric"`
	GroupBy []string `json:"group_by"`
	Filters []Filter `json:"filters"`
	Scope   Scope    `json:"scope"`
}

// Intent is a structurally valid but not yet catalog-checked request.
// It is implemented only by SnapshotIntent and TrendIntent.
type Intent interface {
	Type() IntentType
	Body() IntentBody
	// Time returns the time dimension and range, either of which may be nil
	// for a snapshot. The returned values are copies.
	Time() (*TimeDimensionSpec, *TimeRange)
	isIntent()
}

// SnapshotIntent is a point-in-time aggregate; time fields are optional.
type SnapshotIntent struct {
	IntentBody
	TimeDimension *TimeDimensionSpec
	TimeRange     *TimeRange
}

func (SnapshotIntent) Type() IntentType   { return IntentTypeSnapshot }
func (i SnapshotIntent) Body() IntentBody { return i.IntentBody.clone() }
func (SnapshotIntent) isIntent()          {}

func (i SnapshotIntent) Time() (*TimeDimensionSpec, *TimeRange) {
	var td *TimeDimensionSpec
	var tr *TimeRange
	if i.TimeDimension != nil {
		v := *i.TimeDimension
		td = &v
	}
	if i.TimeRange != nil {
		v := *i.TimeRange
		tr = &v
	}
	return td, tr
}

// TrendIntent is a metric series; both time fields are required.
type TrendIntent struct {
	IntentBody
	TimeDimension TimeDimensionSpec
	TimeRange     TimeRange
}

func (TrendIntent) Type() IntentType   { return IntentTypeTrend }
func (i TrendIntent) Body() IntentBody { return i.IntentBody.clone() }
func (TrendIntent) isIntent()          {}

func (i TrendIntent) Time() (*TimeDimensionSpec, *TimeRange) {
	td := i.TimeDimension
	tr := i.TimeRange
	return &td, &tr
}

func (b IntentBody) clone() IntentBody {
	out := b
	out.GroupBy = append([]string{}, b.GroupBy...)
	out.Filters = append([]Filter{}, b.Filters...)
	return out
}

// ResolvedTimeRange is a catalog-checked time range. For a named window
// Window and EngineRange are set and Start/End hold the dates the window
// resolved to at validation time; for an explicit range only Start/End are set.
type ResolvedTimeRange struct {
	Window      string    `json:"window,omitempty"`
	EngineRange string    `json:"engine_range,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// IsNamed reports whether the range came from a catalog time window.
func (r ResolvedTimeRange) IsNamed() bool {
	return r.Window != ""
}

// ResolvedTimeDimension is a canonical time dimension plus its optional
// granularity and range.
type ResolvedTimeDimension struct {
	Dimension   string             `json:"dimension"`
	Granularity Granularity        `json:"granularity,omitempty"`
	Range       *ResolvedTimeRange `json:"range,omitempty"`
}

// ResolvedFilter is a filter on a canonical member. Value is a scalar or a
// []any; date bounds have been parsed into time.Time.
type ResolvedFilter struct {
	Dimension string   `json:"dimension"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// ValidatedIntent carries only canonical catalog ids. It is the sole input
// accepted by the query compiler.
type ValidatedIntent struct {
	Type          IntentType             `json:"intent_type"`
	Metric        string                 `json:"metric"`
	GroupBy       []string               `json:"group_by"`
	TimeDimension *ResolvedTimeDimension `json:"time_dimension,omitempty"`
	Filters       []ResolvedFilter       `json:"filters"`
	Scope         Scope                  `json:"scope"`
}
