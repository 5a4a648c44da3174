package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultSearchLimit is the maximum number of matches returned when the
// caller does not specify a limit.
const DefaultSearchLimit = 20

const (
	// suggestionLimit caps the "did you mean" list.
	suggestionLimit = 5
	// suggestionThreshold is the minimum Jaro-Winkler similarity for a
	// non-phonetic suggestion.
	suggestionThreshold = 0.85
)

// NameMatch is one search hit: a display name and every slug that shares
// it.
type NameMatch struct {
	Name  string   `json:"name"`
	Slugs []string `json:"slugs"`
}

// SearchResult is the outcome of a coarse name search. Matches is never
// nil. Suggestions carries phonetically similar names and is only
// populated when Matches is empty, as a "did you mean" hint, never as a
// silent substitution.
type SearchResult struct {
	Matches     []NameMatch `json:"matches"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// Searcher performs case-insensitive substring searches over the loaded
// name indexes.
type Searcher struct {
	library *Library
}

// NewSearcher creates a [Searcher] over the given library.
func NewSearcher(library *Library) *Searcher {
	return &Searcher{library: library}
}

// Search returns up to limit names of the given type containing query as a
// case-insensitive substring, in index order. limit values below 1 fall
// back to [DefaultSearchLimit]. When nothing matches, the result instead
// carries up to five phonetically similar names as suggestions.
func (s *Searcher) Search(typ ResourceType, query string, limit int) (*SearchResult, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("catalog: unsupported resource type %q", typ)
	}
	idx, ok := s.library.Index(typ)
	if !ok {
		return nil, fmt.Errorf("catalog: no name index loaded for type %q", typ)
	}
	if limit < 1 {
		limit = DefaultSearchLimit
	}

	q := fold(query)
	result := &SearchResult{Matches: []NameMatch{}}

	for _, name := range idx.Names() {
		if !strings.Contains(strings.ToLower(name), q) {
			continue
		}
		_, slugs, _ := idx.Candidates(name)
		result.Matches = append(result.Matches, NameMatch{Name: name, Slugs: slugs})
		if len(result.Matches) >= limit {
			break
		}
	}

	if len(result.Matches) == 0 {
		result.Suggestions = suggest(idx, q)
	}
	return result, nil
}

// suggest ranks index names against the query by phonetic similarity.
// A name qualifies when its Double Metaphone codes overlap the query's or
// its Jaro-Winkler similarity reaches the threshold. Results are ordered
// by similarity, ties keeping index order.
func suggest(idx *NameIndex, query string) []string {
	if query == "" {
		return nil
	}
	qPrimary, qSecondary := matchr.DoubleMetaphone(query)

	type scored struct {
		name  string
		score float64
	}
	var candidates []scored

	for _, name := range idx.Names() {
		folded := strings.ToLower(name)
		score := matchr.JaroWinkler(query, folded, false)

		phonetic := false
		if qPrimary != "" || qSecondary != "" {
			p, s := matchr.DoubleMetaphone(folded)
			phonetic = codesMatch(qPrimary, qSecondary, p, s)
		}
		if !phonetic && score < suggestionThreshold {
			continue
		}
		candidates = append(candidates, scored{name: name, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > suggestionLimit {
		candidates = candidates[:suggestionLimit]
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

// codesMatch reports whether two Double Metaphone code pairs share a
// non-empty code.
func codesMatch(p1, s1, p2, s2 string) bool {
	if p1 != "" && (p1 == p2 || p1 == s2) {
		return true
	}
	if s1 != "" && (s1 == p2 || s1 == s2) {
		return true
	}
	return false
}
