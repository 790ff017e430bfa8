// Package normalize produces comparison forms of line and heading text.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spacedDots = regexp.MustCompile(`(\d)\s*[.\x{2024}\x{2027}\x{00B7}]\s*(\d)`)
	multiSpace = regexp.MustCompile(`\s+`)

	removed = strings.NewReplacer(
		"\u00ad", "", // soft hyphen
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
	)
	spaces = strings.NewReplacer(
		"\u00a0", " ",
		"\u2007", " ",
		"\u2009", " ",
		"\u202f", " ",
	)
)

// Options controls optional folding steps.
type Options struct {
	Confusables    bool
	FoldDiacritics bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Confusables: true, FoldDiacritics: true}
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Options returns the normalizer configuration.
func (n *Normalizer) Options() Options {
	return n.opts
}

// Normalize returns the comparison form of raw. The input is not modified.
func (n *Normalizer) Normalize(raw string) string {
	s := removed.Replace(raw)
	s = spaces.Replace(s)
	if n.opts.FoldDiacritics {
		s = foldDiacritics(s)
	}
	s = collapseSpacedDots(s)
	s = multiSpace.ReplaceAllString(s, " ")
	if n.opts.Confusables {
		s = foldConfusables(s)
		s = collapseSpacedDots(s)
	}
	s = cases.Fold().String(s)
	return strings.TrimSpace(s)
}

// Strings normalizes every element of in.
func (n *Normalizer) Strings(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = n.Normalize(s)
	}
	return out
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// collapseSpacedDots turns "1 . 2 . 3" into "1.2.3". Matches overlap on the
// shared digit, so it repeats until stable.
func collapseSpacedDots(s string) string {
	for i := 0; i < 8; i++ {
		next := spacedDots.ReplaceAllString(s, "$1.$2")
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func isDot(r rune) bool {
	return r == '.' || r == '\u2024' || r == '\u2027' || r == '\u00b7'
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// foldConfusables replaces capital I and lowercase l with the digit 1 where
// they stand in for a digit:
//
//	"1l" / "2 I."  after a digit
//	"4.l"          after a numbering dot
//	"A l"          after a single-letter word ("Appendix A l" -> "a1")
//	"l.2"          at word start before a dot and a digit
func foldConfusables(s string) string {
	rs := []rune(s)
	out := make([]rune, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != 'I' && r != 'l' {
			out = append(out, r)
			continue
		}
		var next rune
		if i+1 < len(rs) {
			next = rs[i+1]
		}
		endsWord := next == 0 || !unicode.IsLetter(next)

		// previous non-space rune in the output
		j := len(out) - 1
		for j >= 0 && out[j] == ' ' {
			j--
		}
		var prev rune
		if j >= 0 {
			prev = out[j]
		}

		switch {
		case prev != 0 && unicode.IsDigit(prev) && endsWord:
			out = append(out[:j+1], '1')
		case prev != 0 && isDot(prev) && j == len(out)-1 && endsWord && precededByDigit(out, j):
			out = append(out, '1')
		case endsWord && singleLetterWord(out, j) && j < len(out)-1:
			out = append(out[:j+1], '1')
		case (i == 0 || !isWord(rs[i-1])) && i+2 < len(rs) && isDot(next) && unicode.IsDigit(rs[i+2]):
			out = append(out, '1')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func precededByDigit(out []rune, dot int) bool {
	return dot > 0 && unicode.IsDigit(out[dot-1])
}

// singleLetterWord reports whether out[j] is a letter forming a one-letter word.
func singleLetterWord(out []rune, j int) bool {
	if j < 0 || !unicode.IsLetter(out[j]) {
		return false
	}
	return j == 0 || !isWord(out[j-1])
}
