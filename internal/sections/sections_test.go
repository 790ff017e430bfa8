package sections

import (
	"reflect"
	"testing"

	"github.com/jackzampolin/headloc/internal/document"
)

func testOutline(t *testing.T) *document.Outline {
	t.Helper()
	o, err := document.FromEntries([]document.OutlineEntry{
		{Numbering: "1", Title: "Scope", Children: []document.OutlineEntry{
			{Numbering: "1.1", Title: "Purpose"},
			{Numbering: "1.2", Title: "Terms"},
		}},
		{Numbering: "2", Title: "Safety"},
		{Title: "Annex"},
	})
	if err != nil {
		t.Fatalf("FromEntries() error = %v", err)
	}
	return o
}

// testLines builds n lines starting at global index 100, four per page.
func testLines(n int) []document.Line {
	lines := make([]document.Line, n)
	for i := range lines {
		lines[i] = document.Line{Index: 100 + i, Page: 1 + i/4, Text: "line"}
	}
	return lines
}

func TestBuild(t *testing.T) {
	lines := testLines(20)
	o := testOutline(t)
	// nodes: 0 "1", 1 "1.1", 2 "1.2", 3 "2", 4 "Annex"
	p := Build(lines, o, []int{2, 5, 9, 14, 18})

	if err := p.Check(lines); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if p.Preamble == nil || p.Preamble.StartIndex != 100 || p.Preamble.EndIndex != 101 {
		t.Fatalf("Preamble = %+v", p.Preamble)
	}

	want := []struct {
		key              string
		start, end, sub  int
		startPg, endPage int
	}{
		{"1", 102, 104, 113, 1, 2},
		{"1.1", 105, 108, 108, 2, 3},
		{"1.2", 109, 113, 113, 3, 4},
		{"2", 114, 117, 117, 4, 5},
		{"annex", 118, 119, 119, 5, 5},
	}
	if len(p.Sections) != len(want) {
		t.Fatalf("len(Sections) = %d, want %d", len(p.Sections), len(want))
	}
	for i, w := range want {
		s := p.Sections[i]
		if s.Key != w.key || s.StartIndex != w.start || s.EndIndex != w.end || s.SubtreeEndIndex != w.sub {
			t.Errorf("section %d = %+v, want %+v", i, s, w)
		}
		if s.StartPage != w.startPg || s.EndPage != w.endPage {
			t.Errorf("section %d pages = %d-%d, want %d-%d", i, s.StartPage, s.EndPage, w.startPg, w.endPage)
		}
	}
	if got := p.Sections[2].Breadcrumb; !reflect.DeepEqual(got, []string{"1 Scope"}) {
		t.Errorf("Breadcrumb = %q", got)
	}
	if p.Sections[1].LineCount() != 4 {
		t.Errorf("LineCount() = %d, want 4", p.Sections[1].LineCount())
	}
}

func TestBuildAbsorbsUnresolved(t *testing.T) {
	lines := testLines(12)
	o := testOutline(t)
	p := Build(lines, o, []int{0, -1, 4, -1, 8})

	if err := p.Check(lines); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if p.Preamble != nil {
		t.Errorf("Preamble = %+v, want nil", p.Preamble)
	}
	s, ok := p.ForHeading(0)
	if !ok || !reflect.DeepEqual(s.Absorbed, []int{1}) {
		t.Errorf("section 1 absorbed = %v", s.Absorbed)
	}
	// "2" has no resolved ancestor and there is no preamble
	if !reflect.DeepEqual(p.Unassigned, []int{3}) {
		t.Errorf("Unassigned = %v, want [3]", p.Unassigned)
	}
	if _, ok := p.ForHeading(3); ok {
		t.Error("unresolved heading got a section")
	}
}

func TestBuildPreambleAbsorbs(t *testing.T) {
	lines := testLines(8)
	o := testOutline(t)
	p := Build(lines, o, []int{-1, -1, -1, 3, -1})

	if err := p.Check(lines); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if p.Preamble == nil || !reflect.DeepEqual(p.Preamble.Absorbed, []int{0, 1, 2, 4}) {
		t.Errorf("Preamble = %+v", p.Preamble)
	}
}

func TestBuildNothingResolved(t *testing.T) {
	lines := testLines(5)
	p := Build(lines, testOutline(t), []int{-1, -1, -1, -1, -1})
	if err := p.Check(lines); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(p.Sections) != 0 || p.Preamble == nil || p.Preamble.EndIndex != 104 {
		t.Errorf("partition = %+v", p)
	}
}

func TestBuildSharedPosition(t *testing.T) {
	lines := testLines(10)
	p := Build(lines, testOutline(t), []int{0, 3, 3, 6, -1})
	if err := p.Check(lines); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if _, ok := p.ForHeading(2); ok {
		t.Error("second heading on a shared line got a section")
	}
	s, _ := p.ForHeading(0)
	if !reflect.DeepEqual(s.Absorbed, []int{2}) {
		t.Errorf("absorbed = %v, want [2]", s.Absorbed)
	}
}

func TestBuildEmpty(t *testing.T) {
	p := Build(nil, testOutline(t), nil)
	if len(p.All()) != 0 {
		t.Errorf("All() = %v, want empty", p.All())
	}
	if err := p.Check(nil); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if got, want := len(p.Unassigned), testOutline(t).Len(); got != want {
		t.Errorf("len(Unassigned) = %d, want %d", got, want)
	}
}

func TestCheckDetectsGaps(t *testing.T) {
	lines := testLines(4)
	p := &Partition{Sections: []Section{
		{Key: "a", StartIndex: 100, EndIndex: 100},
		{Key: "b", StartIndex: 102, EndIndex: 103},
	}}
	if err := p.Check(lines); err == nil {
		t.Error("Check() accepted a gap")
	}
}

func TestSlugAndKeys(t *testing.T) {
	tests := map[string]string{
		"General Provisions": "general-provisions",
		"  Annex: Tables ":   "annex-tables",
		"Été / Hiver":        "été-hiver",
		"!!!":                "",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}

	k := newKeySet()
	got := []string{k.unique("appendix-a"), k.unique("appendix-a"), k.unique("appendix-a"), k.unique("preamble")}
	want := []string{"appendix-a", "appendix-a-2", "appendix-a-3", "preamble-2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unique keys = %q, want %q", got, want)
	}
}
