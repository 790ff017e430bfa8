// Package numbering parses heading numbers such as "2.3.1", "A.2" and "Appendix B".
package numbering

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const dots = `[.\x{2024}\x{2027}\x{00B7}]`

var (
	componentRe   = regexp.MustCompile(`[A-Za-z]+|\d+`)
	leadingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)\b`)
	sectionLike   = regexp.MustCompile(`^\s*\d+(?:\s*` + dots + `\s*\d+)*\b`)

	// words that may precede a number at the start of a heading line
	prefixWords = `(?:(?:section|chapter|part|appendix|annex|article|clause)\s+)?`
)

// Tokens returns the alphanumeric components of num in order.
func Tokens(num string) []string {
	return componentRe.FindAllString(num, -1)
}

// Key returns a sortable key; letters count A=1..Z=26, AA=27.
func Key(num string) []int {
	toks := Tokens(num)
	key := make([]int, len(toks))
	for i, tok := range toks {
		key[i] = componentValue(tok)
	}
	return key
}

func componentValue(tok string) int {
	if n, err := strconv.Atoi(tok); err == nil {
		return n
	}
	total := 0
	for _, r := range strings.ToUpper(tok) {
		if r >= 'A' && r <= 'Z' {
			total = total*26 + int(r-'A'+1)
		}
	}
	return total
}

// Parent returns the enclosing number: "2.3" for "2.3.1", "A" for "A1".
func Parent(num string) string {
	num = strings.TrimSpace(num)
	if num == "" {
		return ""
	}
	if i := strings.LastIndex(num, "."); i >= 0 {
		return num[:i]
	}
	i := len(num)
	for i > 0 && unicode.IsDigit(rune(num[i-1])) {
		i--
	}
	if i <= 0 || i >= len(num) {
		return ""
	}
	return num[:i]
}

// IsDescendant reports whether candidate is nested below parent.
func IsDescendant(candidate, parent string) bool {
	if parent == "" || candidate == "" || candidate == parent {
		return false
	}
	for cur := Parent(candidate); cur != ""; cur = Parent(cur) {
		if cur == parent {
			return true
		}
	}
	return false
}

// Extract returns a leading dotted number from text, or "".
func Extract(text string) string {
	m := leadingNumber.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// LooksNumeric reports whether text starts with a section-number-like token.
func LooksNumeric(text string) bool {
	return sectionLike.MatchString(text)
}

// core builds the token pattern; digit-to-digit joins tolerate spaced dots.
func core(toks []string, digitJoin string) string {
	var sb strings.Builder
	for i, tok := range toks {
		if i > 0 {
			if isDigits(toks[i-1]) && isDigits(tok) {
				sb.WriteString(digitJoin)
			} else {
				sb.WriteString(`[.\s]*`)
			}
		}
		sb.WriteString(regexp.QuoteMeta(tok))
	}
	return sb.String()
}

// Pattern matches num at the start of a line, optionally after a word such
// as "section" or "appendix". "1" does not match "1.1".
func Pattern(num string) *regexp.Regexp {
	toks := Tokens(num)
	body := regexp.QuoteMeta(strings.TrimSpace(num))
	if len(toks) > 0 {
		body = core(toks, `\s*`+dots+`\s*`)
	}
	return regexp.MustCompile(`(?i)^\s*` + prefixWords + body + `(?:$|[\s):\-]|` + dots + `(?:$|\D))`)
}

// ChildHintPattern matches lines that start with a child number of num
// ("2.1", "2.10" for "2").
func ChildHintPattern(num string) *regexp.Regexp {
	toks := Tokens(num)
	if len(toks) == 0 {
		return nil
	}
	join := `[.\s]*`
	if isDigits(toks[len(toks)-1]) {
		join = `\s*` + dots + `\s*`
	}
	return regexp.MustCompile(`(?i)^\s*` + core(toks, `\.`) + join + `\d+`)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
