// Package normalizer maps free-form business terms onto canonical catalog ids.
package normalizer

import (
	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// Status is the outcome of resolving one term.
type Status int

const (
	StatusResolved  Status = iota // exactly one canonical id
	StatusNotFound                // no entry carries the term
	StatusAmbiguous               // several entries carry the term and scope did not settle it
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNotFound:
		return "not_found"
	case StatusAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Resolution is the result of Resolve. ID is set only when Status is
// StatusResolved; Candidates lists every matching id in catalog order.
type Resolution struct {
	Term       string
	Category   models.Category
	Scope      models.Scope
	Status     Status
	ID         string
	Candidates []string
	// ScopeApplied is true when the scope hint picked ID out of several
	// candidates.
	ScopeApplied bool
}

// Normalizer resolves terms against one catalog instance. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	catalog *catalog.Catalog
}

func New(c *catalog.Catalog) *Normalizer {
	return &Normalizer{catalog: c}
}

// Catalog returns the catalog this normalizer reads.
func (n *Normalizer) Catalog() *catalog.Catalog {
	return n.catalog
}

// Resolve looks up every entry of the category carrying term. When nothing
// matches, the singular form of the term is tried once. Several matches are
// narrowed by scope only when exactly one candidate carries that scope tag;
// otherwise the result is ambiguous and lists all candidates.
func (n *Normalizer) Resolve(term string, cat models.Category, scope models.Scope) Resolution {
	res := Resolution{Term: term, Category: cat, Scope: scope}

	matches := n.catalog.Find(cat, term)
	if len(matches) == 0 {
		key := catalog.NormalizeTerm(term)
		if singular := inflection.Singular(key); singular != key {
			matches = n.catalog.Find(cat, singular)
		}
	}

	res.Candidates = make([]string, len(matches))
	for i, e := range matches {
		res.Candidates[i] = e.ID
	}

	switch len(matches) {
	case 0:
		res.Status = StatusNotFound
		return res
	case 1:
		res.Status = StatusResolved
		res.ID = matches[0].ID
		return res
	}

	if scope != models.ScopeUnspecified {
		var scoped []*catalog.Entry
		for _, e := range matches {
			if e.HasScope(scope) {
				scoped = append(scoped, e)
			}
		}
		if len(scoped) == 1 {
			res.Status = StatusResolved
			res.ID = scoped[0].ID
			res.ScopeApplied = true
			return res
		}
	}

	res.Status = StatusAmbiguous
	return res
}
