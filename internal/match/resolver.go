// Package match ranks item-name candidates against a free-text query. It is
// consumed by the sale-entry path to turn what the merchant typed into a
// concrete item, auto-selecting when exactly one candidate survives.
package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Priorities, lower is better. A candidate is reported at the best tier it
// qualifies for; a query matching no tier yields no result.
const (
	PriorityExact     = 1
	PrioritySubstring = 2
	PriorityDistance  = 3
	PriorityWords     = 4
)

type Match struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Distance int    `json:"distance"`
}

// Resolve ranks candidates by (priority asc, distance asc, name asc).
func Resolve(query string, candidates []string) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	matches := make([]Match, 0, 4)
	for _, name := range candidates {
		t := strings.ToLower(strings.TrimSpace(name))
		if t == "" {
			continue
		}

		if q == t {
			matches = append(matches, Match{Name: name, Priority: PriorityExact})
			continue
		}

		if strings.Contains(t, q) || strings.Contains(q, t) {
			matches = append(matches, Match{Name: name, Priority: PrioritySubstring, Distance: absInt(runeLen(t) - runeLen(q))})
			continue
		}

		if d := Levenshtein(q, t); d <= Threshold(maxInt(runeLen(q), runeLen(t))) {
			matches = append(matches, Match{Name: name, Priority: PriorityDistance, Distance: d})
			continue
		}

		if d, ok := wordsDistance(q, t); ok {
			matches = append(matches, Match{Name: name, Priority: PriorityWords, Distance: d})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Name < matches[j].Name
	})
	return matches
}

// Threshold is the length-scaled edit-distance budget: short strings must
// match exactly, long ones tolerate a quarter of their length. Length is
// counted in runes, matching the distance function.
func Threshold(length int) int {
	switch {
	case length <= 3:
		return 0
	case length <= 5:
		return 1
	case length <= 10:
		return 2
	case length <= 15:
		return 3
	default:
		return length / 4
	}
}

// Levenshtein computes the classic edit distance (insert/delete/substitute
// all cost 1) over runes, using the two-row dynamic program.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// wordsDistance reports whether every whitespace-separated word of the query
// matches some word of the target, by substring or thresholded distance. The
// returned distance is the sum of each query word's best distance.
func wordsDistance(query, target string) (int, bool) {
	queryWords := strings.Fields(query)
	targetWords := strings.Fields(target)
	if len(queryWords) == 0 || len(targetWords) == 0 {
		return 0, false
	}

	total := 0
	for _, qw := range queryWords {
		best := -1
		for _, tw := range targetWords {
			if strings.Contains(tw, qw) || strings.Contains(qw, tw) {
				d := absInt(runeLen(tw) - runeLen(qw))
				if best < 0 || d < best {
					best = d
				}
				continue
			}
			d := Levenshtein(qw, tw)
			if d <= Threshold(maxInt(runeLen(qw), runeLen(tw))) && (best < 0 || d < best) {
				best = d
			}
		}
		if best < 0 {
			return 0, false
		}
		total += best
	}
	return total, true
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
