package locator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackzampolin/headloc/internal/candidate"
	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/trace"
)

// run holds the anchor state of one document. Only resolve and enforce
// write to it, one node at a time in outline order.
type run struct {
	opts    Options
	lines   []document.Line
	outline *document.Outline
	gen     *candidate.Generator
	tr      *trace.Tracer

	pos      []int // line position per node, -1 unless resolved
	status   []Status
	chosen   []candidate.Candidate
	strategy []string
	exclude  []map[int]bool
	retried  []bool

	numericLevels map[int]bool
	passes        int
	corrections   int
	diagnostics   []Diagnostic
}

func newRun(opts Options, lines []document.Line, outline *document.Outline, gen *candidate.Generator, tr *trace.Tracer) *run {
	n := outline.Len()
	r := &run{
		opts:          opts,
		lines:         lines,
		outline:       outline,
		gen:           gen,
		tr:            tr,
		pos:           make([]int, n),
		status:        make([]Status, n),
		chosen:        make([]candidate.Candidate, n),
		strategy:      make([]string, n),
		exclude:       make([]map[int]bool, n),
		retried:       make([]bool, n),
		numericLevels: make(map[int]bool),
	}
	for i := range r.pos {
		r.pos[i] = -1
		r.status[i] = StatusUnresolved
	}
	for _, lvl := range opts.RequireNumericLevels {
		r.numericLevels[lvl] = true
	}
	return r
}

// resolve anchors the roots left to right with a forward cursor, then every
// other heading in pre-order inside the window its neighbors leave open.
func (r *run) resolve(ctx context.Context) error {
	for _, root := range r.outline.Roots() {
		if err := r.resolveNode(ctx, root, r.window(root), ""); err != nil {
			return err
		}
	}
	for i := range r.outline.Nodes {
		if r.outline.Nodes[i].Parent < 0 {
			continue
		}
		if err := r.resolveNode(ctx, i, r.window(i), ""); err != nil {
			return err
		}
	}
	return nil
}

// resolveNode searches w for node i and records the outcome. A non-empty
// strategy overrides the one the search reports.
func (r *run) resolveNode(ctx context.Context, i int, w candidate.Window, strategy string) error {
	c, found, err := r.search(ctx, i, w)
	if err != nil {
		return err
	}
	if !found {
		r.markUnresolvable(i, w)
		return nil
	}
	if strategy != "" && c.strategy != StrategyLastOccurrence {
		c.strategy = strategy
	}
	r.assign(i, c.Candidate, c.strategy)
	return nil
}

type choice struct {
	candidate.Candidate
	strategy string
}

// search returns the best accepted candidate for node i inside w.
func (r *run) search(ctx context.Context, i int, w candidate.Window) (choice, bool, error) {
	w = w.Clip(len(r.lines))
	if w.Empty() {
		return choice{}, false, nil
	}
	h := r.outline.Nodes[i]
	q := candidate.Query{
		Node:      i,
		Numbering: h.Numbering,
		Title:     h.Title,
		Window:    w,
		Exclude:   r.exclude[i],
	}

	numericFirst := r.numericLevels[h.Level] && strings.TrimSpace(h.Numbering) != ""
	strategy := ""
	var cands []candidate.Candidate
	if numericFirst {
		q.RequireNumeric = true
		var err error
		if cands, err = r.gen.Generate(ctx, q); err != nil {
			return choice{}, false, fmt.Errorf("failed to generate candidates for %q: %w", h.Label(), err)
		}
		if _, ok := candidate.Best(cands, r.opts.Candidate.Tiebreak); ok {
			strategy = StrategyNumeric
		} else {
			r.tr.Emit(trace.FallbackTriggered, "node", i, "heading", h.Label(), "reason", "no numeric candidate")
			q.RequireNumeric = false
			strategy = StrategyTextFallback
			cands = nil
		}
	}
	if cands == nil {
		var err error
		if cands, err = r.gen.Generate(ctx, q); err != nil {
			return choice{}, false, fmt.Errorf("failed to generate candidates for %q: %w", h.Label(), err)
		}
	}

	best, ok := candidate.Best(cands, r.opts.Candidate.Tiebreak)
	if !ok {
		return choice{}, false, nil
	}
	if strategy == "" {
		strategy = StrategyText
		if best.Numeric {
			strategy = StrategyNumeric
		}
	}

	if r.opts.LastOccurrenceFallback && r.claimedBy(best.Pos, i) >= 0 {
		if later, ok := r.laterDuplicate(best, cands, w, i); ok {
			return choice{later, StrategyLastOccurrence}, true, nil
		}
	}
	return choice{best, strategy}, true, nil
}

// laterDuplicate returns the first unclaimed candidate after c inside w whose
// text normalizes to the same string.
func (r *run) laterDuplicate(c candidate.Candidate, cands []candidate.Candidate, w candidate.Window, node int) (candidate.Candidate, bool) {
	byPos := make(map[int]candidate.Candidate, len(cands))
	for _, cand := range cands {
		byPos[cand.Pos] = cand
	}
	for _, p := range r.gen.Duplicates(c.Pos, w) {
		if r.claimedBy(p, node) >= 0 {
			continue
		}
		if dup, ok := byPos[p]; ok && dup.Accepted {
			return dup, true
		}
	}
	return candidate.Candidate{}, false
}

func (r *run) assign(i int, c candidate.Candidate, strategy string) {
	r.pos[i] = c.Pos
	r.status[i] = StatusResolved
	r.chosen[i] = c
	r.strategy[i] = strategy
	r.tr.Emit(trace.AnchorResolved,
		"node", i,
		"heading", r.outline.Nodes[i].Label(),
		"line", c.Index,
		"page", c.Page,
		"score", round(c.Fused),
		"strategy", strategy,
	)
}

// demote clears node i so it can be searched again.
func (r *run) demote(i int) {
	r.pos[i] = -1
	r.status[i] = StatusUnresolved
	r.chosen[i] = candidate.Candidate{}
	r.strategy[i] = ""
}

func (r *run) markUnresolvable(i int, w candidate.Window) {
	r.demote(i)
	r.status[i] = StatusUnresolvable
	w = w.Clip(len(r.lines))
	r.tr.Emit(trace.AnchorUnresolvable,
		"node", i,
		"heading", r.outline.Nodes[i].Label(),
		"window_lo", r.globalIndex(w.Lo),
		"window_hi", r.globalIndex(w.Hi),
	)
}

func (r *run) resolved(i int) bool {
	return i >= 0 && r.status[i] == StatusResolved
}

// window returns the search range of node i given the current anchors. It
// starts after the last anchor of the headings before i that do not enclose
// it, no earlier than WindowPad lines before a resolved parent, and ends at
// the nearest anchor of a later heading.
func (r *run) window(i int) candidate.Window {
	parent := r.outline.Nodes[i].Parent
	var lo int
	if r.resolved(parent) {
		lo = max(r.lastBefore(i, true)+1, r.pos[parent]-r.opts.WindowPad)
	} else {
		lo = r.lastBefore(i, false) + 1
	}
	return candidate.Window{Lo: lo, Hi: r.nextAfter(i)}.Clip(len(r.lines))
}

// lastBefore returns the greatest anchor among resolved nodes before i,
// optionally ignoring i's ancestors, or -1.
func (r *run) lastBefore(i int, skipAncestors bool) int {
	last := -1
	for j := 0; j < i; j++ {
		if !r.resolved(j) || (skipAncestors && r.outline.IsAncestor(j, i)) {
			continue
		}
		last = max(last, r.pos[j])
	}
	return last
}

// nextAfter returns the smallest anchor among resolved nodes after i, or the
// line count.
func (r *run) nextAfter(i int) int {
	next := len(r.lines)
	for j := i + 1; j < len(r.pos); j++ {
		if r.resolved(j) {
			next = min(next, r.pos[j])
		}
	}
	return next
}

// claimedBy returns a resolved node other than self anchored at pos, or -1.
func (r *run) claimedBy(pos, self int) int {
	for j, p := range r.pos {
		if j != self && p == pos && r.resolved(j) {
			return j
		}
	}
	return -1
}

func (r *run) globalIndex(pos int) int {
	if len(r.lines) == 0 {
		return pos
	}
	return r.lines[0].Index + pos
}

func (r *run) positions() []int {
	out := make([]int, len(r.pos))
	for i, p := range r.pos {
		if r.resolved(i) {
			out[i] = p
		} else {
			out[i] = -1
		}
	}
	return out
}

func (r *run) anchors() []Anchor {
	out := make([]Anchor, len(r.pos))
	for i, h := range r.outline.Nodes {
		a := Anchor{
			Node:      i,
			Numbering: h.Numbering,
			Title:     h.Title,
			Level:     h.Level,
			Status:    r.status[i],
			LineIndex: -1,
			Page:      -1,
		}
		if r.resolved(i) {
			c := r.chosen[i]
			a.LineIndex = c.Index
			a.Page = c.Page
			a.Text = c.Text
			a.Score = round(c.Fused)
			a.Match = round(c.Match)
			a.Strategy = r.strategy[i]
		}
		out[i] = a
	}
	return out
}

func (r *run) stats() Stats {
	s := Stats{
		Headings:    r.outline.Len(),
		Passes:      r.passes,
		Corrections: r.corrections,
		Strategies:  make(map[string]int),
	}
	for i := range r.pos {
		switch {
		case r.resolved(i):
			s.Resolved++
			s.Strategies[r.strategy[i]]++
		default:
			s.Unresolvable++
		}
	}
	return s
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
