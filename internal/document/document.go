// Package document defines the line sequence and outline consumed by the locator.
// This package has no dependencies on other headloc packages to avoid import cycles.
package document

import "fmt"

// BBox is a line's bounding box in page coordinates (origin top-left).
type BBox struct {
	X0 float64 `json:"x0" yaml:"x0"`
	Y0 float64 `json:"y0" yaml:"y0"`
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
}

// Line is one extracted text line. Lines are never mutated by the locator.
type Line struct {
	Index    int    `json:"global_index" yaml:"global_index"`
	Page     int    `json:"page" yaml:"page"`
	Text     string `json:"text" yaml:"text"`
	BBox     *BBox  `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	FontRank *int   `json:"font_rank,omitempty" yaml:"font_rank,omitempty"` // larger = more prominent
}

// Document is an ordered line sequence.
type Document struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// Validate checks that line indices are contiguous and strictly increasing.
func (d *Document) Validate() error {
	if d == nil {
		return shapeErr("lines", "document is nil")
	}
	for i := 1; i < len(d.Lines); i++ {
		prev, cur := d.Lines[i-1].Index, d.Lines[i].Index
		if cur <= prev {
			return shapeErr(fmt.Sprintf("lines[%d].global_index", i),
				fmt.Sprintf("index %d does not increase after %d", cur, prev))
		}
		if cur != prev+1 {
			return shapeErr(fmt.Sprintf("lines[%d].global_index", i),
				fmt.Sprintf("index %d leaves a gap after %d", cur, prev))
		}
	}
	for i, ln := range d.Lines {
		if ln.Page < 0 {
			return shapeErr(fmt.Sprintf("lines[%d].page", i), "page must be >= 0")
		}
	}
	return nil
}

// PageCount returns the number of distinct pages.
func (d *Document) PageCount() int {
	seen := make(map[int]struct{})
	for _, ln := range d.Lines {
		seen[ln.Page] = struct{}{}
	}
	return len(seen)
}

// Pos returns the slice position for a global index, or -1.
func (d *Document) Pos(globalIndex int) int {
	if len(d.Lines) == 0 {
		return -1
	}
	pos := globalIndex - d.Lines[0].Index
	if pos < 0 || pos >= len(d.Lines) {
		return -1
	}
	return pos
}
