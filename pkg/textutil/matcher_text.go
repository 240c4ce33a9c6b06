// Package textutil provides the lexical primitives used by entity resolution
// and the fallback scorer: normalization, keyword extraction, set overlap,
// and fuzzy string similarity.
package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// stopWords are filler words stripped before keyword overlap. Includes a few
// domain-specific fillers ("service", "provider") that match everything and
// mean nothing.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "can": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {},
	"we": {}, "they": {}, "me": {}, "him": {}, "her": {}, "us": {},
	"them": {}, "service": {}, "provider": {}, "services": {},
	"member": {}, "non": {}, "resource": {},
}

var wordRe = regexp.MustCompile(`\b[a-z]{3,}\b`)

// NormalizeName case-folds and collapses internal whitespace so "  Jane  DOE "
// and "jane doe" compare equal. Unicode full folding, not ASCII lowercasing,
// so "Straße" and "STRASSE" also agree. A Caser is not safe for concurrent
// use; each call builds its own.
func NormalizeName(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return strings.Join(strings.Fields(folded), " ")
}

// Keywords extracts the meaningful lowercase words (3+ letters, stop words
// removed) from free text.
func Keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	if text == "" {
		return out
	}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopWords[w]; !skip {
			out[w] = struct{}{}
		}
	}
	return out
}

// KeywordList is Keywords flattened to a slice, for oracle prompts and logs.
func KeywordList(text string) []string {
	set := Keywords(text)
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// Jaccard returns |a ∩ b| / |a ∪ b|, 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Intersection returns the sorted-insensitive common members of a and b.
func Intersection(a, b map[string]struct{}) []string {
	var out []string
	for w := range a {
		if _, ok := b[w]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Ratio computes fuzzy string similarity in [0, 1] as twice the total length
// of matching blocks over the combined length. Strings should be normalized
// first; the comparison is rune-wise.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	matched := matchTotal(ra, rb, 0, len(ra), 0, len(rb))
	return 2 * float64(matched) / float64(len(ra)+len(rb))
}

// matchTotal sums matching-block lengths by recursing around the longest
// common block, the same divide-and-conquer difference engines use.
func matchTotal(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	return k + matchTotal(a, b, alo, i, blo, j) + matchTotal(a, b, i+k, ahi, j+k, bhi)
}

func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	b2j := make(map[rune][]int)
	for j := blo; j < bhi; j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
