package document

import (
	"fmt"
	"strings"
)

// Heading is one outline node. Nodes live in Outline.Nodes in pre-order and
// refer to their parent by index (-1 for roots).
type Heading struct {
	Numbering string `json:"numbering,omitempty" yaml:"numbering,omitempty"`
	Title     string `json:"title" yaml:"title"`
	Level     int    `json:"level" yaml:"level"`
	Parent    int    `json:"parent" yaml:"parent"`
	Children  []int  `json:"children,omitempty" yaml:"children,omitempty"`
}

// Label returns "numbering title" for display.
func (h Heading) Label() string {
	if h.Numbering == "" {
		return h.Title
	}
	return strings.TrimSpace(h.Numbering + " " + h.Title)
}

// Outline is an index-addressed heading tree in reading order.
type Outline struct {
	Nodes []Heading

	ends []int
}

// OutlineEntry is the wire form of an outline node. Entries may nest through
// Children or arrive flat with levels only.
type OutlineEntry struct {
	Numbering string         `json:"numbering,omitempty" yaml:"numbering,omitempty"`
	Title     string         `json:"title" yaml:"title"`
	Level     int            `json:"level,omitempty" yaml:"level,omitempty"`
	Children  []OutlineEntry `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewOutline validates nodes given in pre-order with parent references and
// fills in Children.
func NewOutline(nodes []Heading) (*Outline, error) {
	o := &Outline{Nodes: make([]Heading, len(nodes))}
	for i, n := range nodes {
		n.Children = nil
		o.Nodes[i] = n
	}
	for i := range o.Nodes {
		n := &o.Nodes[i]
		field := fmt.Sprintf("outline[%d]", i)
		if strings.TrimSpace(n.Title) == "" {
			return nil, shapeErr(field+".title", "title is required")
		}
		if n.Level < 1 {
			return nil, shapeErr(field+".level", fmt.Sprintf("level %d must be >= 1", n.Level))
		}
		if n.Parent < -1 || n.Parent >= i {
			return nil, shapeErr(field+".parent", fmt.Sprintf("parent %d must precede node", n.Parent))
		}
		if n.Parent >= 0 {
			if !o.onRightSpine(i-1, n.Parent) {
				return nil, shapeErr(field+".parent", "nodes are not in pre-order")
			}
			if o.Nodes[n.Parent].Level >= n.Level {
				return nil, shapeErr(field+".level",
					fmt.Sprintf("level %d does not exceed parent level %d", n.Level, o.Nodes[n.Parent].Level))
			}
			o.Nodes[n.Parent].Children = append(o.Nodes[n.Parent].Children, i)
		}
	}
	o.index()
	return o, nil
}

// onRightSpine reports whether p is prev or one of prev's ancestors.
func (o *Outline) onRightSpine(prev, p int) bool {
	for cur := prev; cur >= 0; cur = o.Nodes[cur].Parent {
		if cur == p {
			return true
		}
	}
	return false
}

// FromEntries builds an outline from nested or flat wire entries.
func FromEntries(entries []OutlineEntry) (*Outline, error) {
	nested := false
	for _, e := range entries {
		if len(e.Children) > 0 {
			nested = true
			break
		}
	}
	if nested {
		return fromNested(entries)
	}
	return fromFlat(entries)
}

func fromNested(entries []OutlineEntry) (*Outline, error) {
	var nodes []Heading
	var walk func(list []OutlineEntry, parent, depth int, path string) error
	walk = func(list []OutlineEntry, parent, depth int, path string) error {
		for i, e := range list {
			field := fmt.Sprintf("%s[%d]", path, i)
			level := e.Level
			if level == 0 {
				level = depth
			}
			if level < 1 {
				return shapeErr(field+".level", fmt.Sprintf("level %d must be >= 1", level))
			}
			if parent >= 0 && level <= nodes[parent].Level {
				return shapeErr(field+".level",
					fmt.Sprintf("level %d does not exceed parent level %d", level, nodes[parent].Level))
			}
			idx := len(nodes)
			nodes = append(nodes, Heading{
				Numbering: strings.TrimSpace(e.Numbering),
				Title:     strings.TrimSpace(e.Title),
				Level:     level,
				Parent:    parent,
			})
			if err := walk(e.Children, idx, level+1, field+".children"); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(entries, -1, 1, "outline"); err != nil {
		return nil, err
	}
	return NewOutline(nodes)
}

func fromFlat(entries []OutlineEntry) (*Outline, error) {
	minLevel := 0
	for i, e := range entries {
		if e.Level < 1 {
			return nil, shapeErr(fmt.Sprintf("outline[%d].level", i), fmt.Sprintf("level %d must be >= 1", e.Level))
		}
		if minLevel == 0 || e.Level < minLevel {
			minLevel = e.Level
		}
	}

	nodes := make([]Heading, 0, len(entries))
	var stack []int
	for i, e := range entries {
		for len(stack) > 0 && nodes[stack[len(stack)-1]].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		parent := -1
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		} else if e.Level > minLevel {
			return nil, shapeErr(fmt.Sprintf("outline[%d].level", i),
				fmt.Sprintf("level %d has no enclosing heading", e.Level))
		}
		nodes = append(nodes, Heading{
			Numbering: strings.TrimSpace(e.Numbering),
			Title:     strings.TrimSpace(e.Title),
			Level:     e.Level,
			Parent:    parent,
		})
		stack = append(stack, i)
	}
	return NewOutline(nodes)
}

func (o *Outline) index() {
	o.ends = make([]int, len(o.Nodes))
	for i := len(o.Nodes) - 1; i >= 0; i-- {
		end := i + 1
		if kids := o.Nodes[i].Children; len(kids) > 0 {
			end = o.ends[kids[len(kids)-1]]
		}
		o.ends[i] = end
	}
}

// Len returns the number of headings.
func (o *Outline) Len() int {
	return len(o.Nodes)
}

// Roots returns the indices of top-level headings.
func (o *Outline) Roots() []int {
	var roots []int
	for i, n := range o.Nodes {
		if n.Parent < 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// SubtreeEnd returns the exclusive pre-order end of node i's subtree.
func (o *Outline) SubtreeEnd(i int) int {
	if o.ends == nil {
		o.index()
	}
	return o.ends[i]
}

// IsAncestor reports whether a is a proper ancestor of i.
func (o *Outline) IsAncestor(a, i int) bool {
	return a < i && i < o.SubtreeEnd(a)
}

// Ancestors returns i's ancestors nearest first.
func (o *Outline) Ancestors(i int) []int {
	var out []int
	for p := o.Nodes[i].Parent; p >= 0; p = o.Nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Entries converts the outline back into nested wire entries.
func (o *Outline) Entries() []OutlineEntry {
	var build func(idx int) OutlineEntry
	build = func(idx int) OutlineEntry {
		n := o.Nodes[idx]
		e := OutlineEntry{Numbering: n.Numbering, Title: n.Title, Level: n.Level}
		for _, c := range n.Children {
			e.Children = append(e.Children, build(c))
		}
		return e
	}
	var out []OutlineEntry
	for _, r := range o.Roots() {
		out = append(out, build(r))
	}
	return out
}
