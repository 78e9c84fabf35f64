package services

import (
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// EntrySummary is the public view of one catalog entry.
type EntrySummary struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"display_name,omitempty"`
	Description    string   `json:"description,omitempty"`
	Aliases        []string `json:"aliases"`
	Scopes         []string `json:"scopes"`
	PossibleValues []string `json:"possible_values,omitempty"`
	Granularities  []string `json:"granularities,omitempty"`
}

// TimeWindowSummary is the public view of a named time window.
type TimeWindowSummary struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	EngineRange string   `json:"engine_range"`
}

// CatalogSummary lists what an intent may reference. It backs the catalog
// endpoint and the list_catalog MCP tool.
type CatalogSummary struct {
	Version              string              `json:"version"`
	DefaultTimeDimension string              `json:"default_time_dimension,omitempty"`
	Metrics              []EntrySummary      `json:"metrics"`
	Dimensions           []EntrySummary      `json:"dimensions"`
	TimeDimensions       []EntrySummary      `json:"time_dimensions"`
	TimeWindows          []TimeWindowSummary `json:"time_windows"`
	Operators            []string            `json:"operators"`
	Granularities        []string            `json:"granularities"`
}

// SummarizeCatalog builds the summary of cat. Entries are ordered by id.
func SummarizeCatalog(cat *catalog.Catalog) *CatalogSummary {
	out := &CatalogSummary{
		Version:              cat.Version(),
		DefaultTimeDimension: cat.DefaultTimeDimension(),
		Metrics:              summarizeEntries(cat.Entries(models.CategoryMetric)),
		Dimensions:           summarizeEntries(cat.Entries(models.CategoryDimension)),
		TimeDimensions:       summarizeEntries(cat.Entries(models.CategoryTimeDimension)),
		TimeWindows:          []TimeWindowSummary{},
		Granularities:        models.GranularityNames(),
	}
	for _, w := range cat.TimeWindows() {
		out.TimeWindows = append(out.TimeWindows, TimeWindowSummary{
			Name:        w.Name,
			Aliases:     nonNilStrings(w.Aliases),
			EngineRange: w.EngineRange,
		})
	}
	for _, op := range models.Operators() {
		out.Operators = append(out.Operators, string(op))
	}
	return out
}

func summarizeEntries(entries []*catalog.Entry) []EntrySummary {
	out := make([]EntrySummary, 0, len(entries))
	for _, e := range entries {
		s := EntrySummary{
			ID:             e.ID,
			DisplayName:    e.DisplayName,
			Description:    e.Description,
			Aliases:        nonNilStrings(e.Aliases),
			Scopes:         []string{},
			PossibleValues: append([]string(nil), e.PossibleValues...),
		}
		for _, scope := range e.Scopes {
			s.Scopes = append(s.Scopes, scope.String())
		}
		for _, g := range e.Granularities {
			s.Granularities = append(s.Granularities, string(g))
		}
		out = append(out, s)
	}
	return out
}

func nonNilStrings(in []string) []string {
	return append([]string{}, in...)
}
