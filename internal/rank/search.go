package rank

import (
	"sort"
	"strings"
	"unicode"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Match is one fuzzy search hit.
type Match struct {
	Entity *entity.Entity `json:"entity"`
	Score  float64        `json:"score"`
}

// SearchResult carries the ranked page plus the total match count,
// which is reported independently of any page size limit.
type SearchResult struct {
	Query   string  `json:"query"`
	Total   int     `json:"total"`
	Matches []Match `json:"matches"`
}

// Search matches the query against entity names using substring and
// subsequence matching, camelCase and snake_case aware. Results are
// ranked by match quality; an empty result set is not an error.
func Search(s *graph.Snapshot, query string, limit int) *SearchResult {
	result := &SearchResult{Query: query, Matches: []Match{}}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return result
	}

	var matches []Match
	for _, e := range s.Entities("", "") {
		score := matchScore(e.Key.Name, q)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Entity: e, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entity.Key.ID() < matches[j].Entity.Key.ID()
	})

	result.Total = len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	result.Matches = matches
	return result
}

// matchScore scores a candidate name against a lowercased query.
// Exact match 1.0, word match 0.9, prefix 0.85, substring up to 0.8
// (earlier is better), subsequence up to 0.5 (denser is better).
func matchScore(name, query string) float64 {
	lower := strings.ToLower(name)

	if lower == query {
		return 1.0
	}
	for _, w := range splitWords(name) {
		if w == query {
			return 0.9
		}
	}
	if strings.HasPrefix(lower, query) {
		return 0.85
	}
	if idx := strings.Index(lower, query); idx >= 0 {
		penalty := float64(idx) / float64(len(lower)) * 0.3
		return 0.8 - penalty
	}
	if isSubsequence(query, lower) {
		return 0.5 * float64(len(query)) / float64(len(lower))
	}
	return 0
}

// splitWords splits an identifier into lowercase words on camelCase
// humps, underscores, dots, and dashes.
func splitWords(name string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	var prev rune
	for _, r := range name {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
		prev = r
	}
	flush()
	return words
}

func isSubsequence(needle, haystack string) bool {
	if needle == "" {
		return false
	}
	// Compare rune-wise so multi-byte characters match whole.
	want := []rune(needle)
	i := 0
	for _, r := range haystack {
		if i < len(want) && want[i] == r {
			i++
		}
	}
	return i == len(want)
}
