// Package sections turns resolved heading anchors into a partition of the
// document's lines.
package sections

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jackzampolin/headloc/internal/document"
)

// PreambleKey identifies the lines before the first resolved heading.
const PreambleKey = "preamble"

// Section is a contiguous line range owned by one heading. Index fields are
// global line indices and inclusive.
type Section struct {
	Heading         int      `json:"heading" yaml:"heading"`
	Key             string   `json:"key" yaml:"key"`
	Numbering       string   `json:"numbering,omitempty" yaml:"numbering,omitempty"`
	Title           string   `json:"title,omitempty" yaml:"title,omitempty"`
	Level           int      `json:"level" yaml:"level"`
	Breadcrumb      []string `json:"breadcrumb,omitempty" yaml:"breadcrumb,omitempty"`
	StartIndex      int      `json:"start_index" yaml:"start_index"`
	EndIndex        int      `json:"end_index" yaml:"end_index"`
	StartPage       int      `json:"start_page" yaml:"start_page"`
	EndPage         int      `json:"end_page" yaml:"end_page"`
	SubtreeEndIndex int      `json:"subtree_end_index" yaml:"subtree_end_index"`
	Absorbed        []int    `json:"absorbed,omitempty" yaml:"absorbed,omitempty"`
}

// LineCount returns the number of lines in the section.
func (s Section) LineCount() int {
	return s.EndIndex - s.StartIndex + 1
}

// Partition is the section list of one document.
type Partition struct {
	Preamble *Section  `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Sections []Section `json:"sections" yaml:"sections"`
	// Unassigned lists unresolved headings with neither a resolved ancestor
	// nor a preamble to absorb them.
	Unassigned []int `json:"unassigned,omitempty" yaml:"unassigned,omitempty"`
}

// All returns the preamble (when present) followed by the sections.
func (p *Partition) All() []Section {
	var out []Section
	if p.Preamble != nil {
		out = append(out, *p.Preamble)
	}
	return append(out, p.Sections...)
}

// ForHeading returns the section of outline node i.
func (p *Partition) ForHeading(i int) (Section, bool) {
	for _, s := range p.Sections {
		if s.Heading == i {
			return s, true
		}
	}
	return Section{}, false
}

// Check verifies that the partition covers lines exactly once, in order.
func (p *Partition) Check(lines []document.Line) error {
	all := p.All()
	if len(lines) == 0 {
		if len(all) != 0 {
			return fmt.Errorf("empty document has %d sections", len(all))
		}
		return nil
	}
	next := lines[0].Index
	for _, s := range all {
		if s.StartIndex != next {
			return fmt.Errorf("section %s starts at %d, want %d", s.Key, s.StartIndex, next)
		}
		if s.EndIndex < s.StartIndex {
			return fmt.Errorf("section %s ends at %d before its start %d", s.Key, s.EndIndex, s.StartIndex)
		}
		next = s.EndIndex + 1
	}
	if last := lines[len(lines)-1].Index; next != last+1 {
		return fmt.Errorf("sections end at %d, document ends at %d", next-1, last)
	}
	return nil
}

// Build partitions lines by the resolved headings. positions holds the line
// position of each outline node, or -1 when unresolved. A heading sharing a
// position with an earlier heading is treated as unresolved.
func Build(lines []document.Line, outline *document.Outline, positions []int) *Partition {
	p := &Partition{}
	if len(lines) == 0 {
		for node := 0; node < outline.Len(); node++ {
			p.Unassigned = append(p.Unassigned, node)
		}
		return p
	}

	type anchor struct{ node, pos int }
	var anchors []anchor
	for node, pos := range positions {
		if node < outline.Len() && pos >= 0 && pos < len(lines) {
			anchors = append(anchors, anchor{node, pos})
		}
	}
	sort.SliceStable(anchors, func(i, j int) bool {
		if anchors[i].pos != anchors[j].pos {
			return anchors[i].pos < anchors[j].pos
		}
		return anchors[i].node < anchors[j].node
	})

	placed := make(map[int]int) // node -> index into p.Sections
	keys := newKeySet()
	lastPos := -1
	for _, a := range anchors {
		if a.pos == lastPos {
			continue
		}
		lastPos = a.pos
		h := outline.Nodes[a.node]
		placed[a.node] = len(p.Sections)
		p.Sections = append(p.Sections, Section{
			Heading:    a.node,
			Key:        keys.unique(keyBase(h)),
			Numbering:  h.Numbering,
			Title:      h.Title,
			Level:      h.Level,
			Breadcrumb: breadcrumb(outline, a.node),
			StartIndex: lines[a.pos].Index,
			StartPage:  lines[a.pos].Page,
		})
	}

	last := len(lines) - 1
	for i := range p.Sections {
		endPos := last
		if i+1 < len(p.Sections) {
			endPos = posOf(lines, p.Sections[i+1].StartIndex) - 1
		}
		p.Sections[i].EndIndex = lines[endPos].Index
		p.Sections[i].EndPage = lines[endPos].Page
	}

	firstPos := len(lines)
	if len(p.Sections) > 0 {
		firstPos = posOf(lines, p.Sections[0].StartIndex)
	}
	if firstPos > 0 {
		p.Preamble = &Section{
			Heading:         -1,
			Key:             PreambleKey,
			StartIndex:      lines[0].Index,
			EndIndex:        lines[firstPos-1].Index,
			StartPage:       lines[0].Page,
			EndPage:         lines[firstPos-1].Page,
			SubtreeEndIndex: lines[firstPos-1].Index,
		}
	}

	for i := range p.Sections {
		node := p.Sections[i].Heading
		end := p.Sections[i].EndIndex
		for d := node + 1; d < outline.SubtreeEnd(node); d++ {
			if j, ok := placed[d]; ok {
				end = max(end, p.Sections[j].EndIndex)
			}
		}
		p.Sections[i].SubtreeEndIndex = end
	}

	for node := 0; node < outline.Len(); node++ {
		if _, ok := placed[node]; ok {
			continue
		}
		home := -1
		for _, a := range outline.Ancestors(node) {
			if j, ok := placed[a]; ok {
				home = j
				break
			}
		}
		switch {
		case home >= 0:
			p.Sections[home].Absorbed = append(p.Sections[home].Absorbed, node)
		case p.Preamble != nil:
			p.Preamble.Absorbed = append(p.Preamble.Absorbed, node)
		default:
			p.Unassigned = append(p.Unassigned, node)
		}
	}
	return p
}

func posOf(lines []document.Line, index int) int {
	return index - lines[0].Index
}

func breadcrumb(outline *document.Outline, node int) []string {
	anc := outline.Ancestors(node)
	if len(anc) == 0 {
		return nil
	}
	out := make([]string, len(anc))
	for i, a := range anc {
		out[len(anc)-1-i] = outline.Nodes[a].Label()
	}
	return out
}

func keyBase(h document.Heading) string {
	if n := strings.TrimSpace(h.Numbering); n != "" {
		return n
	}
	if s := Slug(h.Title); s != "" {
		return s
	}
	return "section"
}

// Slug lowercases s and joins its alphanumeric runs with "-".
func Slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return sb.String()
}

type keySet map[string]int

func newKeySet() keySet {
	return keySet{PreambleKey: 1}
}

// unique returns base, or base with a "-N" suffix when base is taken.
func (k keySet) unique(base string) string {
	if k[base] == 0 {
		k[base] = 1
		return base
	}
	for n := k[base] + 1; ; n++ {
		cand := fmt.Sprintf("%s-%d", base, n)
		if k[cand] == 0 {
			k[base] = n
			k[cand] = 1
			return cand
		}
	}
}
