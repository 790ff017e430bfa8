package candidate

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const trailingPunct = ".:;,)"

// TokenSetRatio compares a and b as sets of words, in [0,1]. When one set
// contains the other it returns 1. Otherwise it returns the best string ratio
// among the shared words and each side's remainder.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, diffAB, diffBA []string
	for _, tok := range ta {
		if contains(tb, tok) {
			inter = append(inter, tok)
		} else {
			diffAB = append(diffAB, tok)
		}
	}
	for _, tok := range tb {
		if !contains(ta, tok) {
			diffBA = append(diffBA, tok)
		}
	}

	if len(inter) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 1
	}

	sect := strings.Join(inter, " ")
	rest1 := strings.Join(diffAB, " ")
	rest2 := strings.Join(diffBA, " ")
	if sect == "" {
		return Ratio(rest1, rest2)
	}
	c1 := sect + " " + rest1
	c2 := sect + " " + rest2
	return max(Ratio(sect, c1), Ratio(sect, c2), Ratio(c1, c2))
}

// Ratio is 1 - levenshtein(a, b) / max(len(a), len(b)), counted in runes.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// tokenSet returns the sorted unique words of s with trailing punctuation
// trimmed.
func tokenSet(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range strings.Fields(s) {
		tok := strings.TrimRight(f, trailingPunct)
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// contains reports whether sorted holds tok.
func contains(sorted []string, tok string) bool {
	i := sort.SearchStrings(sorted, tok)
	return i < len(sorted) && sorted[i] == tok
}
