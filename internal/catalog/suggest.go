package catalog

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Suggestion is a fuzzy match for a search text.
type Suggestion struct {
	Text     string `json:"text"`
	Distance int    `json:"distance"`
}

// Suggest ranks candidates by edit distance to query. A candidate matches
// when it contains the query (distance 0) or when its closest word or
// same-length prefix is within a third of the query length, at least 1.
// Candidates are de-duplicated case-insensitively; at most limit are
// returned.
func Suggest(query string, candidates []string, limit int) []Suggestion {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}
	threshold := max(1, utf8.RuneCountInString(q)/3)

	seen := make(map[string]bool, len(candidates))
	var out []Suggestion
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if d := distance(q, key); d <= threshold {
			out = append(out, Suggestion{Text: strings.TrimSpace(c), Distance: d})
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// distance is the smallest edit distance between q and the candidate, any
// of its words, or its prefix of q's length.
func distance(q, candidate string) int {
	if strings.Contains(candidate, q) {
		return 0
	}
	best := levenshtein.ComputeDistance(q, candidate)
	for _, w := range strings.Fields(candidate) {
		best = min(best, levenshtein.ComputeDistance(q, w))
	}
	if r := []rune(candidate); len(r) > utf8.RuneCountInString(q) {
		best = min(best, levenshtein.ComputeDistance(q, string(r[:utf8.RuneCountInString(q)])))
	}
	return best
}
