package index

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Documents are tokenized into runs of letters, marks, digits,
// underscores and dots. Dots only survive inside a token.
var reIDFToken = regexp.MustCompile(`[\p{L}\p{M}\p{N}_.]+`)

func idfTokens(doc string) []string {
	var out []string
	for _, tok := range idfTokens(doc) {
		if tok = strings.Trim(tok, "."); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// ComputeIDF returns smoothed inverse document frequencies,
// idf = ln((1+n)/(1+df)) + 1, where each document is one entity text.
func ComputeIDF(docs []string) map[string]float64 {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range reIDFToken.FindAllString(doc, -1) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for tok, d := range df {
		idf[tok] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return idf
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Prefix returns the posting key for a word: its first three characters.
func Prefix(word string) string {
	if utf8.RuneCountInString(word) <= 3 {
		return word
	}
	runes := []rune(word)
	return string(runes[:3])
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
