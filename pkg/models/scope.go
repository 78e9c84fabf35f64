package models

import (
	"fmt"
	"strings"
)

// Scope is a context hint used to pick between catalog entries that share an
// alias. Every entry may be tagged with zero or more scopes.
type Scope int

const (
	ScopeUnspecified Scope = iota
	ScopePrimary           // Manufacturer-to-distributor sales
	ScopeSecondary         // Distributor-to-retailer sales
	scopeCount
)

var scopeNames = [scopeCount]string{
	ScopeUnspecified: "",
	ScopePrimary:     "primary",
	ScopeSecondary:   "secondary",
}

// Scopes returns every taggable scope (ScopeUnspecified excluded).
func Scopes() []Scope {
	out := make([]Scope, 0, scopeCount-1)
	for s := ScopeUnspecified + 1; s < scopeCount; s++ {
		out = append(out, s)
	}
	return out
}

func (s Scope) String() string {
	if s < 0 || s >= scopeCount {
		return fmt.Sprintf("scope(%d)", int(s))
	}
	return scopeNames[s]
}

// ParseScope is case-insensitive. An empty string is ScopeUnspecified.
func ParseScope(s string) (Scope, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range scopeNames {
		if n == name {
			return Scope(i), nil
		}
	}
	return ScopeUnspecified, fmt.Errorf("unknown scope %q", s)
}

func (s Scope) MarshalText() ([]byte, error) {
	if s < 0 || s >= scopeCount {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(scopeNames[s]), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Category is the kind of catalog entry a term refers to.
type Category int

const (
	CategoryMetric Category = iota
	CategoryDimension
	CategoryTimeDimension
	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryMetric:        "metric",
	CategoryDimension:     "dimension",
	CategoryTimeDimension: "time_dimension",
}

// Categories returns every category.
func Categories() []Category {
	return []Category{CategoryMetric, CategoryDimension, CategoryTimeDimension}
}

func (c Category) String() string {
	if c < 0 || c >= categoryCount {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory accepts the names returned by String.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}
