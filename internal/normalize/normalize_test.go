package normalize

import "testing"

func TestNormalize(t *testing.T) {
	n := New(DefaultOptions())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  3.   Safety\tRequirements  ", "3. safety requirements"},
		{"removes soft hyphen", "Require\u00adments", "requirements"},
		{"nbsp becomes space", "Section\u00a04", "section 4"},
		{"spaced numbering", "1 . 1 Scope", "1.1 scope"},
		{"chained spaced numbering", "2 . 3 . 4 Loads", "2.3.4 loads"},
		{"middle dot numbering", "4·2 Tests", "4.2 tests"},
		{"diacritics folded", "Résumé général", "resume general"},
		{"casefold", "SECTION 4", "section 4"},
		{"l after digit", "1l Scope", "11 scope"},
		{"I after digit and space", "2 I. Overview", "21. overview"},
		{"l after numbering dot", "4.l Pumps", "4.1 pumps"},
		{"l at word start before dot digit", "l.2 Valves", "1.2 valves"},
		{"single letter word then l", "Appendix A l", "appendix a1"},
		{"ordinary words untouched", "Item list Is long", "item list is long"},
		{"mid-word l untouched", "SECTlON 4", "sectlon 4"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeWithoutConfusables(t *testing.T) {
	n := New(Options{Confusables: false, FoldDiacritics: false})

	if got := n.Normalize("1l Scope"); got != "1l scope" {
		t.Errorf("Normalize() = %q, want %q", got, "1l scope")
	}
	if got := n.Normalize("Résumé"); got != "résumé" {
		t.Errorf("Normalize() = %q, want %q", got, "résumé")
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New(DefaultOptions())
	in := "Appendix  A l . 2\u00ad Tables"
	first := n.Normalize(in)
	for i := 0; i < 5; i++ {
		if got := n.Normalize(in); got != first {
			t.Fatalf("Normalize() run %d = %q, want %q", i, got, first)
		}
	}
	if in != "Appendix  A l . 2\u00ad Tables" {
		t.Error("Normalize() mutated its input")
	}
}

func TestStrings(t *testing.T) {
	n := New(DefaultOptions())
	got := n.Strings([]string{"A", " B "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Strings() = %q", got)
	}
}
