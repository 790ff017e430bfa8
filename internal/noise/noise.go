// Package noise flags lines that echo headings without starting them:
// table-of-contents pages and running headers/footers.
package noise

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/numbering"
)

var (
	dotLeader = regexp.MustCompile(`\.{3,}\s*\d+\s*$`)
	// a title followed by a trailing page number, e.g. "2.1 Guards 14"
	pageRef = regexp.MustCompile(`\S\s+\d{1,4}\s*$`)
	digitRun  = regexp.MustCompile(`\d+`)
)

// Options configures the detectors.
type Options struct {
	SuppressTOC     bool
	SuppressRunning bool

	// BandLines is how many lines at the top and bottom of a page form the
	// header/footer band.
	BandLines int

	TOCMinLeaders int
	// TOCMinSectionTokens is how many numbered entries ending in a page
	// number (leader lines included) mark a page as table of contents.
	TOCMinSectionTokens int
	// TOCLeaderLines flags dot-leader lines on pages that are not TOC pages.
	TOCLeaderLines bool

	RunnerMinPages int
	RunnerFraction float64
	// MaskDigits compares band texts with digit runs masked, so
	// "Page 3 of 40" and "Page 4 of 40" count as the same runner.
	MaskDigits bool
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return Options{
		SuppressTOC:         true,
		SuppressRunning:     true,
		BandLines:           5,
		TOCMinLeaders:       4,
		TOCMinSectionTokens: 6,
		TOCLeaderLines:      true,
		RunnerMinPages:      2,
		RunnerFraction:      0.6,
		MaskDigits:          true,
	}
}

// Flags are the per-line noise markers.
type Flags struct {
	TOC         bool `json:"is_toc"`
	RunningBand bool `json:"is_running"`
}

// Result holds per-line flags, parallel to the classified lines.
type Result struct {
	Flags    []Flags
	InBand   []bool
	TOCPages []int
	Runners  []string

	opts Options
}

// Skip reports whether the line at pos must be excluded from candidate
// search under the configured suppression toggles.
func (r *Result) Skip(pos int) bool {
	if r == nil || pos < 0 || pos >= len(r.Flags) {
		return false
	}
	f := r.Flags[pos]
	return (f.TOC && r.opts.SuppressTOC) || (f.RunningBand && r.opts.SuppressRunning)
}

// Banded reports whether the line at pos sits in a page's header/footer band.
func (r *Result) Banded(pos int) bool {
	if r == nil || pos < 0 || pos >= len(r.InBand) {
		return false
	}
	return r.InBand[pos]
}

// Counts returns the number of TOC-flagged and running-band lines.
func (r *Result) Counts() (toc, running int) {
	if r == nil {
		return 0, 0
	}
	for _, f := range r.Flags {
		if f.TOC {
			toc++
		}
		if f.RunningBand {
			running++
		}
	}
	return toc, running
}

// Classifier evaluates a document once and produces a Result.
type Classifier struct {
	opts Options
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.BandLines < 0 {
		opts.BandLines = 0
	}
	return &Classifier{opts: opts}
}

// Classify flags lines. normalized must be parallel to lines.
func (c *Classifier) Classify(lines []document.Line, normalized []string) *Result {
	res := &Result{
		Flags:  make([]Flags, len(lines)),
		InBand: make([]bool, len(lines)),
		opts:   c.opts,
	}
	if len(lines) == 0 {
		return res
	}

	order, pages := groupPages(lines)

	for _, page := range order {
		positions := pages[page]
		if c.isTOCPage(lines, normalized, positions) {
			res.TOCPages = append(res.TOCPages, page)
			for _, pos := range positions {
				res.Flags[pos].TOC = true
			}
		}
		// a short page would be all band; only mark band lines on pages
		// long enough to have a body
		if len(positions) > 2*c.opts.BandLines {
			for _, pos := range bandPositions(positions, c.opts.BandLines) {
				res.InBand[pos] = true
			}
		}
	}

	if c.opts.TOCLeaderLines {
		for i, ln := range lines {
			if dotLeader.MatchString(ln.Text) {
				res.Flags[i].TOC = true
			}
		}
	}

	c.markRunners(res, normalized, order, pages)
	return res
}

// isTOCPage reports whether a page lists headings instead of starting them.
// Numbered lines count as entries only when they end in a page number, so a
// page of numbered clauses stays a body page.
func (c *Classifier) isTOCPage(lines []document.Line, normalized []string, positions []int) bool {
	var leaders, entries, bodyLike int
	for _, pos := range positions {
		text := normalized[pos]
		switch {
		case dotLeader.MatchString(lines[pos].Text):
			leaders++
		case numbering.LooksNumeric(text) && pageRef.MatchString(lines[pos].Text):
			entries++
		case strings.Contains(text, ".") && len([]rune(text)) >= 40:
			bodyLike++
		}
	}
	if c.opts.TOCMinLeaders > 0 && leaders >= c.opts.TOCMinLeaders {
		return true
	}
	entries += leaders
	if c.opts.TOCMinSectionTokens > 0 && entries >= c.opts.TOCMinSectionTokens {
		return bodyLike <= max(1, entries/2)
	}
	return false
}

func (c *Classifier) markRunners(res *Result, normalized []string, order []int, pages map[int][]int) {
	if c.opts.BandLines == 0 {
		return
	}
	seen := make(map[string]map[int]bool)
	for _, page := range order {
		for _, pos := range bandPositions(pages[page], c.opts.BandLines) {
			key := c.bandKey(normalized[pos])
			if key == "" {
				continue
			}
			if seen[key] == nil {
				seen[key] = make(map[int]bool)
			}
			seen[key][page] = true
		}
	}

	threshold := max(c.opts.RunnerMinPages, int(math.Floor(c.opts.RunnerFraction*float64(len(order)))))
	if threshold < 2 {
		threshold = 2
	}
	runners := make(map[string]bool)
	for key, onPages := range seen {
		if len(onPages) >= threshold {
			runners[key] = true
			res.Runners = append(res.Runners, key)
		}
	}
	sort.Strings(res.Runners)
	if len(runners) == 0 {
		return
	}
	for i, text := range normalized {
		if runners[c.bandKey(text)] {
			res.Flags[i].RunningBand = true
		}
	}
}

func (c *Classifier) bandKey(text string) string {
	if c.opts.MaskDigits {
		return digitRun.ReplaceAllString(text, "#")
	}
	return text
}

// groupPages returns page numbers in order of first appearance and the line
// positions of each page.
func groupPages(lines []document.Line) ([]int, map[int][]int) {
	var order []int
	pages := make(map[int][]int)
	for i, ln := range lines {
		if _, ok := pages[ln.Page]; !ok {
			order = append(order, ln.Page)
		}
		pages[ln.Page] = append(pages[ln.Page], i)
	}
	return order, pages
}

// bandPositions returns the first and last n positions of a page, without
// repeats.
func bandPositions(positions []int, n int) []int {
	if n <= 0 {
		return nil
	}
	if len(positions) <= 2*n {
		return positions
	}
	out := make([]int, 0, 2*n)
	out = append(out, positions[:n]...)
	out = append(out, positions[len(positions)-n:]...)
	return out
}
