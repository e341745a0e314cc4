package model

import "strings"

// Token-overlap similarity: two decision texts are compared by the number
// of lowercase whitespace-split words they share. Approximate and lexical,
// not semantic — good enough for a human-scale personal log, and cheap
// enough to recompute on every call.

// Tokens returns the set of lowercase whitespace-split words in text.
func Tokens(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

// Overlap returns the size of the intersection of the two token sets.
func Overlap(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// OverlapRatio returns overlap divided by the size of the smaller set,
// or 0 when either set is empty. Used by the repeated-mistake rule:
// a ratio above 0.5 means the texts are mostly the same words.
func OverlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	return float64(Overlap(a, b)) / float64(min)
}
