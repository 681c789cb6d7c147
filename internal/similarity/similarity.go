// Package similarity scores how alike two transaction descriptions are.
package similarity

import (
	"unicode"
)

// Func scores two descriptions on a 0-100 scale.
type Func func(a, b string) float64

// Score returns the percentage similarity of a and b in the range [0, 100].
//
// Every digit is removed from both inputs first, so reference numbers and
// dates embedded in bank descriptions do not affect the comparison. The
// remaining text is compared by repeatedly taking the longest common
// substring and recursing into the unmatched text on its left and right:
//
//	score = 2 * matched / (len(a) + len(b)) * 100
//
// Lengths are counted in runes. Two inputs that are both empty after digit
// removal score 100, exactly one empty input scores 0. The inputs are put in
// lexicographic order before matching, which makes the score symmetric.
func Score(a, b string) float64 {
	ra, rb := stripDigits(a), stripDigits(b)

	switch {
	case len(ra) == 0 && len(rb) == 0:
		return 100
	case len(ra) == 0 || len(rb) == 0:
		return 0
	}

	if string(ra) > string(rb) {
		ra, rb = rb, ra
	}

	matched := commonLength(ra, rb)
	return float64(2*matched) * 100 / float64(len(ra)+len(rb))
}

func stripDigits(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// commonLength sums the lengths of the longest common substring of a and b
// and, recursively, of the common substrings left and right of it.
func commonLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	posA, posB, n := longestCommon(a, b)
	if n == 0 {
		return 0
	}

	return n +
		commonLength(a[:posA], b[:posB]) +
		commonLength(a[posA+n:], b[posB+n:])
}

// longestCommon finds the longest common substring of a and b. Ties go to
// the earliest position in a, then the earliest position in b.
func longestCommon(a, b []rune) (posA, posB, length int) {
	for i := range a {
		if len(a)-i <= length {
			break
		}
		for j := range b {
			if len(b)-j <= length {
				break
			}
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > length {
				posA, posB, length = i, j, k
			}
		}
	}
	return posA, posB, length
}
