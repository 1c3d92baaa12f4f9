package rank

import (
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Ratio scores the similarity of two words on a 0..100 scale as
// 2*LCS/(len(a)+len(b)), rounded to the nearest integer. Identical words
// score 100.
func Ratio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return int(math.Round(200 * float64(lcs) / float64(total)))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
