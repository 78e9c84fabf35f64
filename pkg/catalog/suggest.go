package catalog

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/intentgate/pkg/models"
)

// Suggestion tiers, best first.
const (
	tierContains = iota // term and key contain one another
	tierSimilar         // shared token or edit distance within half the length
	tierNone
)

type candidate struct {
	id   string
	keys []string
}

// Suggest returns up to limit canonical ids of the category ranked by lexical
// closeness to term. It only feeds error messages and never picks a match.
// A limit of zero or less returns every ranked candidate.
func (c *Catalog) Suggest(term string, cat models.Category, limit int) []string {
	entries := c.Entries(cat)
	cands := make([]candidate, len(entries))
	for i, e := range entries {
		cands[i] = candidate{id: e.ID, keys: e.terms()}
	}
	return rankCandidates(normalizeTerm(term), cands, limit)
}

// SuggestTimeWindows ranks window names the same way Suggest ranks entries.
func (c *Catalog) SuggestTimeWindows(term string, limit int) []string {
	cands := make([]candidate, len(c.windows))
	for i, w := range c.windows {
		cands[i] = candidate{id: w.Name, keys: append([]string{w.Name}, w.Aliases...)}
	}
	return rankCandidates(normalizeTerm(term), cands, limit)
}

func rankCandidates(term string, cands []candidate, limit int) []string {
	if term == "" {
		return []string{}
	}

	type scored struct {
		id   string
		tier int
		dist int
	}
	termTokens := tokenize(term)

	var ranked []scored
	for _, cand := range cands {
		best := scored{id: cand.id, tier: tierNone, dist: -1}
		for _, key := range cand.keys {
			dist := levenshteinDistance(term, key)
			tier := tierNone
			switch {
			case strings.Contains(key, term) || strings.Contains(term, key):
				tier = tierContains
			case sharesToken(termTokens, tokenize(key)) || 2*dist <= maxInt(runeLen(term), runeLen(key)):
				tier = tierSimilar
			}
			if tier < best.tier || (tier == best.tier && (best.dist < 0 || dist < best.dist)) {
				best.tier = tier
				best.dist = dist
			}
		}
		if best.tier != tierNone {
			ranked = append(ranked, best)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].tier != ranked[j].tier {
			return ranked[i].tier < ranked[j].tier
		}
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].id < ranked[j].id
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.id
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '.'
	})
}

func sharesToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// levenshteinDistance is the rune-wise edit distance between two strings,
// computed with two rolling rows of the DP table.
func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = minOf3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

func minOf3(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// RankTerms ranks arbitrary strings (for example a dimension's possible
// values) against term with the same rules as Suggest, returning the original
// spellings.
func RankTerms(term string, options []string, limit int) []string {
	cands := make([]candidate, 0, len(options))
	for _, o := range options {
		cands = append(cands, candidate{id: o, keys: []string{normalizeTerm(o)}})
	}
	return rankCandidates(normalizeTerm(term), cands, limit)
}
