package locator

import "strings"

// AlignmentRow describes where one heading landed.
type AlignmentRow struct {
	Node       int     `json:"node" yaml:"node"`
	Heading    string  `json:"heading" yaml:"heading"`
	Level      int     `json:"level" yaml:"level"`
	Found      bool    `json:"found" yaml:"found"`
	Page       int     `json:"page,omitempty" yaml:"page,omitempty"`
	LineIndex  int     `json:"line_index,omitempty" yaml:"line_index,omitempty"`
	LineText   string  `json:"line_text,omitempty" yaml:"line_text,omitempty"`
	Score      float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Strategy   string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	SectionKey string  `json:"section,omitempty" yaml:"section,omitempty"`
	Lines      int     `json:"lines,omitempty" yaml:"lines,omitempty"`
}

// Alignment lists every heading in outline order with its anchor and the
// section it owns. Unresolvable headings name the section absorbing them.
func (r *Result) Alignment() []AlignmentRow {
	owner := make(map[int]string)
	part := r.Partition()
	for _, s := range part.All() {
		for _, n := range s.Absorbed {
			owner[n] = s.Key
		}
	}

	rows := make([]AlignmentRow, len(r.Anchors))
	for i, a := range r.Anchors {
		row := AlignmentRow{
			Node:    a.Node,
			Heading: strings.TrimSpace(a.Numbering + " " + a.Title),
			Level:   a.Level,
			Found:   a.Resolved(),
		}
		if s, ok := part.ForHeading(a.Node); ok {
			row.SectionKey = s.Key
			row.Lines = s.LineCount()
		} else {
			row.SectionKey = owner[a.Node]
		}
		if a.Resolved() {
			row.Page = a.Page
			row.LineIndex = a.LineIndex
			row.LineText = a.Text
			row.Score = a.Score
			row.Strategy = a.Strategy
		}
		rows[i] = row
	}
	return rows
}

// Unresolved returns the anchors without a line.
func (r *Result) Unresolved() []Anchor {
	var out []Anchor
	for _, a := range r.Anchors {
		if !a.Resolved() {
			out = append(out, a)
		}
	}
	return out
}
