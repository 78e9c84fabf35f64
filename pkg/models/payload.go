package models

// QueryPayload is the request body handed to the semantic-query engine.
// All four keys are always present; empty sequences encode as [].
type QueryPayload struct {
	Measures       []string             `json:"measures"`
	Dimensions     []string             `json:"dimensions"`
	TimeDimensions []TimeDimensionQuery `json:"timeDimensions"`
	Filters        []FilterQuery        `json:"filters"`
}

// TimeDimensionQuery is one engine time dimension. DateRange is either an
// engine-native window phrase (string) or a [start, end] pair ([]string).
type TimeDimensionQuery struct {
	Dimension   string `json:"dimension"`
	DateRange   any    `json:"dateRange,omitempty"`
	Granularity string `json:"granularity,omitempty"`
}

// FilterQuery is one engine filter. Values are always strings on the wire.
type FilterQuery struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}
