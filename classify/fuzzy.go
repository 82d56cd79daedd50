package classify

import (
	"strings"
	"unicode"
)

// Match thresholds. The exact values are load-bearing: bullets annotated
// on real pages were tuned against them, so treat changes as behavior
// changes, not cleanups.
const (
	// SimilarEnough is the alignment similarity above which a matched
	// sentence pair is considered consistent and produces no annotation.
	SimilarEnough = 0.95

	// RelatedBullet is the minimum fuzzy score for a sentence to be
	// attributed to a page bullet.
	RelatedBullet = 0.4

	// minTokenLen: tokens must be longer than this many runes to count
	// toward the Jaccard sets.
	minTokenLen = 2
)

// Normalize lowercases the text and strips punctuation, collapsing runs
// of whitespace to single spaces.
func Normalize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Score computes the fuzzy match score between a bullet and a sentence.
// Both are normalized first. Equal → 1.0; one a substring of the other →
// 0.9; otherwise Jaccard similarity over the word sets restricted to
// tokens longer than minTokenLen runes. The score is symmetric.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}

	sa, sb := tokenSet(na), tokenSet(nb)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(normalized) {
		if len([]rune(t)) > minTokenLen {
			set[t] = struct{}{}
		}
	}
	return set
}
