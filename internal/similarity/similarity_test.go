package similarity

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "Coffee Shop", "Coffee Shop", 100},
		{"identical after digit removal", "CARD 1234 NETFLIX", "CARD 9876 NETFLIX", 100},
		{"only digits on both sides", "123", "4567", 100},
		{"both empty", "", "", 100},
		{"one empty", "", "Coffee", 0},
		{"one empty after digit removal", "2024", "Coffee", 0},
		{"disjoint", "abc", "xyz", 0},
		{"trailing token", "Coffee Shop", "Coffee Shop #2", 2.0 * 11 / 24 * 100},
		{"dropped letter", "World", "Word", 2.0 * 4 / 9 * 100},
		{"unicode runes", "Żabka", "Żabka12", 100},
		{"multibyte length in runes", "Łódź", "Łód", 2.0 * 3 / 7 * 100},
		{"case sensitive", "abc", "ABC", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b)
			if !approxEqual(got, tt.want) {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestScore_Symmetric(t *testing.T) {
	inputs := []string{
		"",
		"Coffee Shop",
		"Coffee Shop #2",
		"PRZELEW 0012 ORLEN",
		"ORLEN STACJA 44",
		"abcabc",
		"cbacba",
		"aab",
		"aba",
		"Netflix.com",
		"NETFLIX",
	}

	for _, a := range inputs {
		for _, b := range inputs {
			ab, ba := Score(a, b), Score(b, a)
			if !approxEqual(ab, ba) {
				t.Errorf("Score(%q, %q) = %v but Score(%q, %q) = %v", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestScore_Range(t *testing.T) {
	pairs := [][2]string{
		{"Grocery store 11", "grocery STORE"},
		{"a", "aaaa"},
		{"Rent March", "Rent April"},
	}

	for _, p := range pairs {
		got := Score(p[0], p[1])
		if got < 0 || got > 100 {
			t.Errorf("Score(%q, %q) = %v, want value in [0, 100]", p[0], p[1], got)
		}
	}
}

func TestLongestCommon_TieBreak(t *testing.T) {
	// "ab" occurs twice in a; the earliest occurrence wins.
	posA, posB, n := longestCommon([]rune("abxab"), []rune("ab"))
	if posA != 0 || posB != 0 || n != 2 {
		t.Errorf("longestCommon() = (%d, %d, %d), want (0, 0, 2)", posA, posB, n)
	}
}
