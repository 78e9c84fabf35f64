// Package validator checks untrusted intents against a catalog and produces
// fully canonical ValidatedIntents.
//
// Validation runs five gates in a fixed order: structure, metric, group-by
// dimensions, time, filters. The first failing gate's error is returned and
// later gates are not evaluated.
package validator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/jsonutil"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/normalizer"
	"github.com/ekaya-inc/intentgate/pkg/sql"
)

// Options controls the policy choices of the time and filter gates.
type Options struct {
	// RequireSnapshotTimeRange rejects SNAPSHOT intents without a time_range.
	RequireSnapshotTimeRange bool
	// UseCatalogDefaultTimeDimension lets a time_range without a
	// time_dimension use the catalog's declared default_time_dimension.
	// When false, or when the catalog declares none, that intent is rejected.
	UseCatalogDefaultTimeDimension bool
	// SuggestionLimit caps suggestions for unknown terms and filter values.
	SuggestionLimit int
	// WindowSuggestionLimit caps suggestions for unknown time windows.
	WindowSuggestionLimit int
	// ScreenInjection runs libinjection over string filter values.
	ScreenInjection bool
	// Location is used to resolve named windows and to parse dates.
	Location *time.Location
	// Now returns the reference time for named windows. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		RequireSnapshotTimeRange:       false,
		UseCatalogDefaultTimeDimension: true,
		SuggestionLimit:                3,
		WindowSuggestionLimit:          5,
		ScreenInjection:                true,
		Location:                       time.UTC,
	}
}

// Validator is bound to one catalog instance and holds no mutable state.
type Validator struct {
	catalog    *catalog.Catalog
	normalizer *normalizer.Normalizer
	opts       Options
}

func New(c *catalog.Catalog, opts Options) *Validator {
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = 3
	}
	if opts.WindowSuggestionLimit <= 0 {
		opts.WindowSuggestionLimit = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Validator{
		catalog:    c,
		normalizer: normalizer.New(c),
		opts:       opts,
	}
}

// Catalog returns the catalog this validator checks against.
func (v *Validator) Catalog() *catalog.Catalog {
	return v.catalog
}

// Validate runs every gate over an untrusted document. A failure is always a
// *apperrors.ValidationError.
func (v *Validator) Validate(raw map[string]any) (*models.ValidatedIntent, error) {
	intent, verr := decode(raw)
	if verr != nil {
		return nil, verr
	}
	return v.ValidateIntent(intent)
}

// ValidateIntent runs every gate over an intent built in code. The structural
// checks decode applies to documents are repeated here, so a hand-built
// intent cannot carry an unsupported operator or value shape past the
// filter gate. List values must be []any, as encoding/json produces.
func (v *Validator) ValidateIntent(intent models.Intent) (*models.ValidatedIntent, error) {
	if verr := checkStructure(intent); verr != nil {
		return nil, verr
	}
	body := intent.Body()
	out := &models.ValidatedIntent{
		Type:    intent.Type(),
		Scope:   body.Scope,
		GroupBy: []string{},
		Filters: []models.ResolvedFilter{},
	}

	if verr := v.checkMetric(body, out); verr != nil {
		return nil, verr
	}
	if verr := v.checkGroupBy(body, out); verr != nil {
		return nil, verr
	}
	if verr := v.checkTime(intent, out); verr != nil {
		return nil, verr
	}
	if verr := v.checkFilters(body, out); verr != nil {
		return nil, verr
	}
	return out, nil
}

func (v *Validator) checkMetric(body models.IntentBody, out *models.ValidatedIntent) *apperrors.ValidationError {
	res := v.normalizer.Resolve(body.Metric, models.CategoryMetric, body.Scope)
	switch res.Status {
	case normalizer.StatusNotFound:
		return apperrors.NewUnknownMetric(body.Metric,
			v.catalog.Suggest(body.Metric, models.CategoryMetric, v.opts.SuggestionLimit))
	case normalizer.StatusAmbiguous:
		return apperrors.NewAmbiguousMetric(body.Metric, res.Candidates)
	}
	out.Metric = res.ID
	return nil
}

// checkGroupBy resolves dimensions in order. Two terms resolving to the same
// id collapse into one entry at the first position.
func (v *Validator) checkGroupBy(body models.IntentBody, out *models.ValidatedIntent) *apperrors.ValidationError {
	seen := make(map[string]bool, len(body.GroupBy))
	for i, term := range body.GroupBy {
		field := fmt.Sprintf("group_by[%d]", i)
		id, verr := v.resolveDimension(term, field, models.CategoryDimension, body.Scope)
		if verr != nil {
			return verr
		}
		if !seen[id] {
			seen[id] = true
			out.GroupBy = append(out.GroupBy, id)
		}
	}
	return nil
}

func (v *Validator) resolveDimension(term, field string, cat models.Category, scope models.Scope) (string, *apperrors.ValidationError) {
	res := v.normalizer.Resolve(term, cat, scope)
	switch res.Status {
	case normalizer.StatusNotFound:
		return "", apperrors.NewUnknownDimension(term, field,
			v.catalog.Suggest(term, cat, v.opts.SuggestionLimit))
	case normalizer.StatusAmbiguous:
		return "", apperrors.NewAmbiguousDimension(term, field, res.Candidates)
	}
	return res.ID, nil
}

func (v *Validator) checkTime(intent models.Intent, out *models.ValidatedIntent) *apperrors.ValidationError {
	td, tr := intent.Time()
	scope := intent.Body().Scope

	if intent.Type() == models.IntentTypeSnapshot && tr == nil && v.opts.RequireSnapshotTimeRange {
		return apperrors.NewMalformedIntent("time_range", "SNAPSHOT intent requires time_range", nil)
	}
	if td == nil && tr == nil {
		return nil
	}

	var entry *catalog.Entry
	if td != nil {
		res := v.normalizer.Resolve(td.Dimension, models.CategoryTimeDimension, scope)
		switch res.Status {
		case normalizer.StatusNotFound:
			return apperrors.NewUnknownTimeDimension(td.Dimension,
				v.catalog.Suggest(td.Dimension, models.CategoryTimeDimension, v.opts.SuggestionLimit))
		case normalizer.StatusAmbiguous:
			return apperrors.NewAmbiguousDimension(td.Dimension, "time_dimension.dimension", res.Candidates)
		}
		entry, _ = v.catalog.Entry(models.CategoryTimeDimension, res.ID)
	} else {
		def := v.catalog.DefaultTimeDimension()
		if !v.opts.UseCatalogDefaultTimeDimension || def == "" {
			return apperrors.NewMalformedIntent("time_dimension", "time_range requires time_dimension", nil)
		}
		entry, _ = v.catalog.Entry(models.CategoryTimeDimension, def)
	}
	if entry == nil {
		return apperrors.NewMalformedIntent("time_dimension", "time dimension could not be resolved", nil)
	}

	resolved := &models.ResolvedTimeDimension{Dimension: entry.ID}

	if tr != nil {
		r, verr := v.resolveRange(*tr)
		if verr != nil {
			return verr
		}
		resolved.Range = r
	}

	if td != nil && td.Granularity != "" {
		g, ok := models.ParseGranularity(td.Granularity)
		if !ok {
			return apperrors.NewInvalidGranularity(td.Granularity, models.GranularityNames())
		}
		if !entry.SupportsGranularity(g) {
			allowed := make([]string, len(entry.Granularities))
			for i, eg := range entry.Granularities {
				allowed[i] = string(eg)
			}
			return apperrors.NewInvalidGranularity(td.Granularity, allowed)
		}
		resolved.Granularity = g
	}

	out.TimeDimension = resolved
	return nil
}

func (v *Validator) resolveRange(tr models.TimeRange) (*models.ResolvedTimeRange, *apperrors.ValidationError) {
	if tr.IsNamed() {
		w, err := v.catalog.TimeWindow(tr.Window)
		if err != nil {
			suggestions := v.catalog.SuggestTimeWindows(tr.Window, v.opts.WindowSuggestionLimit)
			if len(suggestions) == 0 {
				for _, known := range v.catalog.TimeWindows() {
					if len(suggestions) == v.opts.WindowSuggestionLimit {
						break
					}
					suggestions = append(suggestions, known.Name)
				}
			}
			return nil, apperrors.NewInvalidTimeWindow(tr.Window, suggestions)
		}
		dr := w.Resolve(v.opts.Now().In(v.opts.Location))
		return &models.ResolvedTimeRange{
			Window:      w.Name,
			EngineRange: w.EngineRange,
			Start:       dr.Start,
			End:         dr.End,
		}, nil
	}

	start, ok := parseDate(tr.StartDate, v.opts.Location)
	if !ok {
		return nil, apperrors.NewInvalidTimeRange("time_range.start_date",
			fmt.Sprintf("start_date '%s' is not a valid date (expected YYYY-MM-DD)", tr.StartDate), tr.StartDate)
	}
	end, ok := parseDate(tr.EndDate, v.opts.Location)
	if !ok {
		return nil, apperrors.NewInvalidTimeRange("time_range.end_date",
			fmt.Sprintf("end_date '%s' is not a valid date (expected YYYY-MM-DD)", tr.EndDate), tr.EndDate)
	}
	if start.After(end) {
		return nil, apperrors.NewInvalidTimeRange("time_range",
			fmt.Sprintf("start_date %s is after end_date %s", start.Format(catalog.DateLayout), end.Format(catalog.DateLayout)),
			[]string{tr.StartDate, tr.EndDate})
	}
	return &models.ResolvedTimeRange{Start: start, End: end}, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns midnight of that day
// in loc.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(catalog.DateLayout, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func (v *Validator) checkFilters(body models.IntentBody, out *models.ValidatedIntent) *apperrors.ValidationError {
	for i, f := range body.Filters {
		entry, verr := v.resolveFilterDimension(f, fmt.Sprintf("filters[%d].dimension", i), body.Scope)
		if verr != nil {
			return verr
		}
		value, verr := v.checkFilterValue(i, f, entry)
		if verr != nil {
			return verr
		}
		out.Filters = append(out.Filters, models.ResolvedFilter{
			Dimension: entry.ID,
			Operator:  f.Operator,
			Value:     value,
		})
	}
	return nil
}

// resolveFilterDimension resolves date_range filters against time dimensions
// and every other filter against dimensions, falling back to time dimensions
// so a comparison on a date field is allowed.
func (v *Validator) resolveFilterDimension(f models.Filter, field string, scope models.Scope) (*catalog.Entry, *apperrors.ValidationError) {
	cat := models.CategoryDimension
	if f.Operator == models.OperatorDateRange {
		cat = models.CategoryTimeDimension
	}

	res := v.normalizer.Resolve(f.Dimension, cat, scope)
	if res.Status == normalizer.StatusNotFound && cat == models.CategoryDimension {
		if tdRes := v.normalizer.Resolve(f.Dimension, models.CategoryTimeDimension, scope); tdRes.Status != normalizer.StatusNotFound {
			res = tdRes
			cat = models.CategoryTimeDimension
		}
	}

	switch res.Status {
	case normalizer.StatusNotFound:
		return nil, apperrors.NewUnknownDimension(f.Dimension, field,
			v.catalog.Suggest(f.Dimension, cat, v.opts.SuggestionLimit))
	case normalizer.StatusAmbiguous:
		return nil, apperrors.NewAmbiguousDimension(f.Dimension, field, res.Candidates)
	}
	entry, _ := v.catalog.Entry(cat, res.ID)
	return entry, nil
}

func (v *Validator) checkFilterValue(i int, f models.Filter, entry *catalog.Entry) (any, *apperrors.ValidationError) {
	field := fmt.Sprintf("filters[%d].value", i)
	isTime := entry.Category == models.CategoryTimeDimension

	switch f.Operator.Shape() {
	case models.ShapeList:
		items, ok := toList(f.Value)
		if !ok {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator '%s' requires a list of values", f.Operator), f.Value, nil)
		}
		if len(items) == 0 {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator '%s' requires a non-empty list", f.Operator), f.Value, nil)
		}
		values := make([]any, len(items))
		for j, item := range items {
			val, verr := v.checkScalar(i, fmt.Sprintf("%s[%d]", field, j), f.Operator, item, entry, isTime)
			if verr != nil {
				return nil, verr
			}
			values[j] = val
		}
		return values, nil

	case models.ShapePair:
		items, ok := toList(f.Value)
		if !ok || len(items) != 2 {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator '%s' requires exactly two bounds [start, end]", f.Operator), f.Value, nil)
		}
		var bounds [2]time.Time
		for j, item := range items {
			s, _ := item.(string)
			d, ok := parseDate(s, v.opts.Location)
			if !ok {
				return nil, apperrors.NewInvalidFilter(i, fmt.Sprintf("%s[%d]", field, j),
					fmt.Sprintf("'%v' is not a valid date (expected YYYY-MM-DD)", item), item, nil)
			}
			bounds[j] = d
		}
		if bounds[0].After(bounds[1]) {
			return nil, apperrors.NewInvalidFilter(i, field, "date range start is after end", f.Value, nil)
		}
		return []any{bounds[0], bounds[1]}, nil
	}

	return v.checkScalar(i, field, f.Operator, f.Value, entry, isTime)
}

func (v *Validator) checkScalar(i int, field string, op models.Operator, value any, entry *catalog.Entry, isTime bool) (any, *apperrors.ValidationError) {
	s, ok := jsonutil.ScalarString(value)
	if !ok {
		return nil, apperrors.NewInvalidFilter(i, field, "filter value must be a string, number or boolean", value, nil)
	}
	if strings.TrimSpace(s) == "" {
		return nil, apperrors.NewInvalidFilter(i, field, "filter value must not be empty", value, nil)
	}

	if isTime {
		if op == models.OperatorContains {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator 'contains' is not supported on time dimension %s", entry.ID), value, nil)
		}
		d, ok := parseDate(s, v.opts.Location)
		if !ok {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("'%s' is not a valid date (expected YYYY-MM-DD)", s), value, nil)
		}
		return d, nil
	}

	if op.IsComparison() {
		if _, isBool := value.(bool); isBool {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator '%s' requires a number", op), value, nil)
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil, apperrors.NewInvalidFilter(i, field,
				fmt.Sprintf("operator '%s' requires a number, got '%s'", op, s), value, nil)
		}
		return value, nil
	}

	if v.opts.ScreenInjection {
		if hit := sql.CheckValueForInjection(field, value); hit != nil {
			return nil, apperrors.NewInjectedFilterValue(i, hit.Field, hit.Value, hit.Fingerprint)
		}
	}

	if len(entry.PossibleValues) > 0 && op != models.OperatorContains {
		trimmed := strings.TrimSpace(s)
		for _, pv := range entry.PossibleValues {
			if strings.EqualFold(trimmed, pv) {
				return pv, nil
			}
		}
		return nil, apperrors.NewInvalidFilter(i, field,
			fmt.Sprintf("'%s' is not a known value of %s", s, entry.ID), value,
			catalog.RankTerms(s, entry.PossibleValues, v.opts.SuggestionLimit))
	}
	return value, nil
}

func toList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
