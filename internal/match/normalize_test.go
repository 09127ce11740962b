package match

import (
	"math"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Alice ", " MARTIN "); got != "alice martin" {
		t.Fatalf("NormalizeName = %q", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"alice martin", "alice martin", 0},
		{"alice martin", "alyce martine", 2},
		// No transposition discount: a swap costs two edits.
		{"ab", "ba", 2},
	}
	for _, c := range cases {
		if got := Levenshtein(c.a, c.b); got != c.want {
			t.Fatalf("Levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("", ""); got != 1 {
		t.Fatalf("Similarity of empty strings = %v", got)
	}
	if got := Similarity("abc", "abc"); got != 1 {
		t.Fatalf("identical strings = %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("disjoint strings = %v", got)
	}
	// "alice martin" vs "alyce martine": distance 2 over max length 13.
	want := 1 - 2.0/13.0
	if got := Similarity("alice martin", "alyce martine"); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Similarity = %v, want %v", got, want)
	}
}
