// Package catalog holds the immutable index of metrics, dimensions, time
// dimensions and time windows an intent may reference.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// Entry is one canonical catalog item.
type Entry struct {
	ID             string
	Category       models.Category
	Name           string
	DisplayName    string
	Description    string
	Aliases        []string
	Scopes         []models.Scope
	PossibleValues []string
	Granularities  []models.Granularity
}

// HasScope reports whether the entry is tagged with s.
func (e *Entry) HasScope(s models.Scope) bool {
	for _, tag := range e.Scopes {
		if tag == s {
			return true
		}
	}
	return false
}

// SupportsGranularity reports whether g may be used with this time dimension.
func (e *Entry) SupportsGranularity(g models.Granularity) bool {
	for _, allowed := range e.Granularities {
		if allowed == g {
			return true
		}
	}
	return false
}

// Catalog is built once by New and never mutated afterwards. All methods are
// safe for concurrent use.
type Catalog struct {
	version              string
	defaultTimeDimension string
	def                  Definition

	entries [3][]*Entry
	byID    [3]map[string]*Entry
	// byTerm maps a normalized name, display name or alias to every entry
	// carrying it, ordered by id.
	byTerm [3]map[string][]*Entry

	windows      []TimeWindow
	windowByTerm map[string]int
}

var separatorRun = regexp.MustCompile(`[\s\-_]+`)

// normalizeTerm lowercases, trims and collapses whitespace, hyphens and
// underscores into a single underscore.
func normalizeTerm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = separatorRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// NormalizeTerm exposes the key normalization used by every lookup.
func NormalizeTerm(s string) string {
	return normalizeTerm(s)
}

// New validates def and builds an indexed catalog. Canonical ids must be
// unique within a category; aliases may be shared.
func New(def Definition) (*Catalog, error) {
	c := &Catalog{
		version:      def.Version,
		windowByTerm: make(map[string]int),
	}

	groups := [3][]EntryDefinition{
		models.CategoryMetric:        def.Metrics,
		models.CategoryDimension:     def.Dimensions,
		models.CategoryTimeDimension: def.TimeDimensions,
	}
	for _, cat := range models.Categories() {
		c.byID[cat] = make(map[string]*Entry)
		c.byTerm[cat] = make(map[string][]*Entry)
		for i, ed := range groups[cat] {
			e, err := buildEntry(cat, ed)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", apperrors.ErrCatalogInvalid, cat, i, err)
			}
			key := normalizeTerm(e.ID)
			if _, dup := c.byID[cat][key]; dup {
				return nil, fmt.Errorf("%w: duplicate %s id %q", apperrors.ErrCatalogInvalid, cat, e.ID)
			}
			c.byID[cat][key] = e
			c.entries[cat] = append(c.entries[cat], e)
		}
		sort.Slice(c.entries[cat], func(i, j int) bool {
			return c.entries[cat][i].ID < c.entries[cat][j].ID
		})
		for _, e := range c.entries[cat] {
			for _, term := range e.terms() {
				c.byTerm[cat][term] = appendUnique(c.byTerm[cat][term], e)
			}
		}
	}

	if def.DefaultTimeDimension != "" {
		e, ok := c.byID[models.CategoryTimeDimension][normalizeTerm(def.DefaultTimeDimension)]
		if !ok {
			return nil, fmt.Errorf("%w: default_time_dimension %q is not a time dimension",
				apperrors.ErrCatalogInvalid, def.DefaultTimeDimension)
		}
		c.defaultTimeDimension = e.ID
	}

	windowDefs := def.TimeWindows
	if len(windowDefs) == 0 {
		windowDefs = DefaultTimeWindows()
	}
	for _, wd := range windowDefs {
		w, err := buildTimeWindow(wd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogInvalid, err)
		}
		idx := len(c.windows)
		for _, term := range append([]string{w.Name}, w.Aliases...) {
			if prev, dup := c.windowByTerm[term]; dup {
				return nil, fmt.Errorf("%w: time window term %q used by %q and %q",
					apperrors.ErrCatalogInvalid, term, c.windows[prev].Name, w.Name)
			}
			c.windowByTerm[term] = idx
		}
		c.windows = append(c.windows, w)
	}

	c.def = cloneDefinition(def)
	return c, nil
}

func buildEntry(cat models.Category, ed EntryDefinition) (*Entry, error) {
	id := strings.TrimSpace(ed.ID)
	if id == "" {
		return nil, fmt.Errorf("empty id")
	}
	e := &Entry{
		ID:             id,
		Category:       cat,
		Name:           ed.Name,
		DisplayName:    ed.DisplayName,
		Description:    ed.Description,
		Aliases:        append([]string(nil), ed.Aliases...),
		PossibleValues: append([]string(nil), ed.PossibleValues...),
	}
	for _, raw := range ed.Scopes {
		s, err := models.ParseScope(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		if s != models.ScopeUnspecified && !e.HasScope(s) {
			e.Scopes = append(e.Scopes, s)
		}
	}
	if cat == models.CategoryTimeDimension {
		if len(ed.Granularities) == 0 {
			e.Granularities = models.Granularities()
		}
		for _, raw := range ed.Granularities {
			g, ok := models.ParseGranularity(raw)
			if !ok {
				return nil, fmt.Errorf("%s: unknown granularity %q", id, raw)
			}
			e.Granularities = append(e.Granularities, g)
		}
	}
	return e, nil
}

func (e *Entry) terms() []string {
	raw := append([]string{e.ID, e.Name, e.DisplayName}, e.Aliases...)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if t := normalizeTerm(r); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func appendUnique(list []*Entry, e *Entry) []*Entry {
	for _, existing := range list {
		if existing == e {
			return list
		}
	}
	return append(list, e)
}

// Version is the catalog's declared version string.
func (c *Catalog) Version() string {
	return c.version
}

// DefaultTimeDimension is the declared fallback time dimension, or "".
func (c *Catalog) DefaultTimeDimension() string {
	return c.defaultTimeDimension
}

// Definition returns a copy of the definition the catalog was built from.
func (c *Catalog) Definition() Definition {
	return cloneDefinition(c.def)
}

// Find returns every entry of the category whose id, name, display name or
// alias matches term, ordered by id. A term equal to a canonical id matches
// only that entry.
func (c *Catalog) Find(cat models.Category, term string) []*Entry {
	if cat < 0 || int(cat) >= len(c.byID) {
		return nil
	}
	key := normalizeTerm(term)
	if key == "" {
		return nil
	}
	if e, ok := c.byID[cat][key]; ok {
		return []*Entry{e}
	}
	matches := c.byTerm[cat][key]
	return append([]*Entry(nil), matches...)
}

// Entry returns the entry with the canonical id.
func (c *Catalog) Entry(cat models.Category, id string) (*Entry, bool) {
	if cat < 0 || int(cat) >= len(c.byID) {
		return nil, false
	}
	e, ok := c.byID[cat][normalizeTerm(id)]
	return e, ok
}

// Entries returns every entry of the category ordered by id.
func (c *Catalog) Entries(cat models.Category) []*Entry {
	if cat < 0 || int(cat) >= len(c.entries) {
		return nil
	}
	return append([]*Entry(nil), c.entries[cat]...)
}

// IDs returns the canonical ids of the category ordered by id.
func (c *Catalog) IDs(cat models.Category) []string {
	entries := c.Entries(cat)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func (c *Catalog) lookup(cat models.Category, term string) (string, error) {
	matches := c.Find(cat, term)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s %q: %w", cat, term, apperrors.ErrNotFound)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%s %q matches %d entries: %w", cat, term, len(matches), apperrors.ErrAmbiguous)
	}
}

// LookupMetric resolves term to a single canonical metric id.
func (c *Catalog) LookupMetric(term string) (string, error) {
	return c.lookup(models.CategoryMetric, term)
}

// LookupDimension resolves term to a single canonical dimension id.
func (c *Catalog) LookupDimension(term string) (string, error) {
	return c.lookup(models.CategoryDimension, term)
}

// LookupTimeDimension resolves term to a single canonical time dimension id.
func (c *Catalog) LookupTimeDimension(term string) (string, error) {
	return c.lookup(models.CategoryTimeDimension, term)
}

// TimeWindow returns the window named or aliased by name.
func (c *Catalog) TimeWindow(name string) (TimeWindow, error) {
	idx, ok := c.windowByTerm[normalizeTerm(name)]
	if !ok {
		return TimeWindow{}, fmt.Errorf("time window %q: %w", name, apperrors.ErrNotFound)
	}
	return c.windows[idx], nil
}

// LookupTimeWindow resolves a named window to concrete dates relative to now.
func (c *Catalog) LookupTimeWindow(name string, now time.Time) (DateRange, error) {
	w, err := c.TimeWindow(name)
	if err != nil {
		return DateRange{}, err
	}
	return w.Resolve(now), nil
}

// TimeWindows returns every window in declaration order.
func (c *Catalog) TimeWindows() []TimeWindow {
	return append([]TimeWindow(nil), c.windows...)
}

func cloneDefinition(def Definition) Definition {
	out := def
	out.Metrics = cloneEntryDefs(def.Metrics)
	out.Dimensions = cloneEntryDefs(def.Dimensions)
	out.TimeDimensions = cloneEntryDefs(def.TimeDimensions)
	out.TimeWindows = make([]TimeWindowDefinition, len(def.TimeWindows))
	for i, w := range def.TimeWindows {
		w.Aliases = append([]string(nil), w.Aliases...)
		out.TimeWindows[i] = w
	}
	return out
}

func cloneEntryDefs(in []EntryDefinition) []EntryDefinition {
	out := make([]EntryDefinition, len(in))
	for i, e := range in {
		e.Aliases = append([]string(nil), e.Aliases...)
		e.Scopes = append([]string(nil), e.Scopes...)
		e.PossibleValues = append([]string(nil), e.PossibleValues...)
		e.Granularities = append([]string(nil), e.Granularities...)
		out[i] = e
	}
	return out
}
