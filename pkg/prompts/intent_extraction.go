package prompts

import (
	"fmt"
	"strings"
)

// EntryContext describes one catalog term for the extraction prompt.
type EntryContext struct {
	ID             string
	DisplayName    string
	Description    string
	Aliases        []string
	Scopes         []string
	PossibleValues []string
	Granularities  []string
}

// CatalogContext is the slice of the catalog the model is allowed to use.
type CatalogContext struct {
	Version              string
	DefaultTimeDimension string
	Metrics              []EntryContext
	Dimensions           []EntryContext
	TimeDimensions       []EntryContext
	TimeWindows          []string
}

// IntentExtractionSystemMessage instructs the model to act as a parser. It
// must not answer the question or invent terms.
func IntentExtractionSystemMessage() string {
	return `You translate analytics questions into a structured intent object.
You are a parser, not an analyst: never answer the question, never compute numbers.

Rules:
- Use only metric, dimension, time dimension and time window names listed in the catalog.
- Copy the user's wording for a term when you are unsure which catalog entry it means; do not guess between similar entries.
- intent_type is "TREND" when the user asks how something changes over time, otherwise "SNAPSHOT".
- A TREND intent needs time_dimension and time_range. Set a granularity whenever the question implies a series, for example "by month".
- time_range is either {"window": "<name>"} or {"start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD"}, never both.
- Omit fields the question does not mention.

Respond ONLY with a single JSON object. No markdown, no explanations.`
}

// BuildIntentExtractionPrompt renders the catalog and the question.
func BuildIntentExtractionPrompt(cat CatalogContext, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Semantic Catalog\n\n")
	if cat.Version != "" {
		prompt.WriteString(fmt.Sprintf("Version: %s\n\n", cat.Version))
	}

	writeEntries(&prompt, "Metrics", cat.Metrics)
	writeEntries(&prompt, "Dimensions", cat.Dimensions)
	writeEntries(&prompt, "Time Dimensions", cat.TimeDimensions)

	if len(cat.TimeWindows) > 0 {
		prompt.WriteString("## Time Windows\n")
		prompt.WriteString(strings.Join(cat.TimeWindows, ", "))
		prompt.WriteString("\n\n")
	}
	if cat.DefaultTimeDimension != "" {
		prompt.WriteString(fmt.Sprintf("Default time dimension: %s\n\n", cat.DefaultTimeDimension))
	}

	prompt.WriteString("# Question\n")
	prompt.WriteString(strings.TrimSpace(question))
	prompt.WriteString("\n\n")

	prompt.WriteString(`# Output Format
{
  "intent_type": "SNAPSHOT" | "TREND",
  "metric": "<metric>",
  "group_by": ["<dimension>"],
  "time_dimension": {"dimension": "<time dimension>", "granularity": "day" | "week" | "month" | "quarter" | "year"},
  "time_range": {"window": "<time window>"},
  "filters": [{"dimension": "<dimension>", "operator": "equals" | "not_equals" | "in" | "not_in" | "contains" | "greater_than" | "less_than" | "date_range", "value": "<value or list>"}],
  "scope": "primary" | "secondary"
}`)

	return prompt.String()
}

func writeEntries(prompt *strings.Builder, title string, entries []EntryContext) {
	if len(entries) == 0 {
		return
	}
	prompt.WriteString(fmt.Sprintf("## %s\n", title))
	for _, e := range entries {
		prompt.WriteString(fmt.Sprintf("- %s", e.ID))
		if e.DisplayName != "" && e.DisplayName != e.ID {
			prompt.WriteString(fmt.Sprintf(" (%s)", e.DisplayName))
		}
		if e.Description != "" {
			prompt.WriteString(": " + e.Description)
		}
		prompt.WriteString("\n")
		if len(e.Aliases) > 0 {
			prompt.WriteString(fmt.Sprintf("  aliases: %s\n", strings.Join(e.Aliases, ", ")))
		}
		if len(e.Scopes) > 0 {
			prompt.WriteString(fmt.Sprintf("  scope: %s\n", strings.Join(e.Scopes, ", ")))
		}
		if len(e.PossibleValues) > 0 {
			prompt.WriteString(fmt.Sprintf("  values: %s\n", strings.Join(e.PossibleValues, ", ")))
		}
		if len(e.Granularities) > 0 {
			prompt.WriteString(fmt.Sprintf("  granularities: %s\n", strings.Join(e.Granularities, ", ")))
		}
	}
	prompt.WriteString("\n")
}
