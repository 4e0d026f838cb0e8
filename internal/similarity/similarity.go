// Package similarity implements the string and vector similarity primitives
// used to score screening candidates.
//
// All primitives operate on normalized matching keys (see internal/normalize),
// return values in [0, 1], are commutative, and return 1.0 when both inputs
// are empty. They carry no state and are safe for concurrent use.
package similarity

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Edit returns the normalized Levenshtein similarity
// 1 − distance/max(len(a), len(b)), with unit-cost inserts, deletes, and
// substitutions. Returns 1.0 when both inputs are empty and 0.0 when exactly
// one is empty. Lengths are counted in runes.
func Edit(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0.0
	}
	dist := matchr.Levenshtein(a, b)
	denom := la
	if lb > denom {
		denom = lb
	}
	sim := 1.0 - float64(dist)/float64(denom)
	if sim < 0 {
		return 0
	}
	return sim
}

// Prefix returns Jaro-Winkler similarity: the standard Jaro score plus a
// common-prefix boost of min(prefix, 4) · 0.1 · (1 − jaro).
//
// The boost is applied unconditionally. Ports of the jellyfish library
// (including matchr) gate it behind a 0.7 Jaro threshold, which changes
// scores for dissimilar pairs, so the Winkler adjustment is computed here.
func Prefix(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	j := jaro(ra, rb)

	prefix := 0
	for i := 0; i < len(ra) && i < len(rb) && prefix < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1.0-j)
}

// TokenOverlap returns the Jaccard similarity of the whitespace-token sets
// of a and b. Returns 1.0 when both inputs are empty and 0.0 when exactly
// one is empty.
func TokenOverlap(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}

	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// Cosine returns the inner product of two pre-normalized (unit L2 norm)
// vectors, which equals their cosine similarity. When either vector is
// missing or the dimensions disagree the result is an explicit 0, since vectors
// from different embedding models must never be compared.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// jaro computes standard Jaro similarity over rune slices: match window
// ⌊max(len)/2⌋ − 1 clamped to ≥ 0, transpositions counted over the matched
// pairs.
func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	la, lb := len(a), len(b)

	window := la
	if lb > window {
		window = lb
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, la)
	bMatched := make([]bool, lb)
	matches := 0

	for i := 0; i < la; i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > lb {
			hi = lb
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions))/m) / 3.0
}

// tokenSet splits s on whitespace into a set of unique tokens.
func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
