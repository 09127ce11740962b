// Package match implements identity resolution for inbound messages:
// exact email lookup, fuzzy name matching over edit distance, dossier
// association by normalized title, and content-addressed document dedup.
package match

import "strings"

// NormalizeName lowercases and trims a first/last pair into the canonical
// "first last" comparison key.
func NormalizeName(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + " " + strings.ToLower(strings.TrimSpace(last))
}

// NormalizeTitle lowercases and trims a dossier title. Titles are matched
// exactly after normalization, never fuzzily: they are copied between
// channels verbatim rather than transcribed.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Levenshtein computes the edit distance between a and b with unit cost for
// insertion, deletion and substitution (no transposition discount).
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity maps edit distance into a [0,1] ratio:
// 1 - distance/max(len(a), len(b)). Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	r := 1 - float64(Levenshtein(a, b))/float64(maxLen)
	if r < 0 {
		return 0
	}
	return r
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
