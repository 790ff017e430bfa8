// Package candidate finds and scores the lines that may start a heading.
package candidate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/noise"
	"github.com/jackzampolin/headloc/internal/normalize"
	"github.com/jackzampolin/headloc/internal/numbering"
	"github.com/jackzampolin/headloc/internal/similarity"
	"github.com/jackzampolin/headloc/internal/trace"
)

// Epsilon is the tolerance for score comparisons and ties.
const Epsilon = 1e-9

// Tiebreak picks between candidates with equal fused scores.
type Tiebreak string

const (
	TiebreakEarliest Tiebreak = "earliest"
	TiebreakLast     Tiebreak = "last"
)

// Window is a half-open range [Lo, Hi) of line positions.
type Window struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Empty reports whether the window holds no positions.
func (w Window) Empty() bool { return w.Hi <= w.Lo }

// Contains reports whether pos lies in the window.
func (w Window) Contains(pos int) bool { return pos >= w.Lo && pos < w.Hi }

// Clip limits the window to [0, n).
func (w Window) Clip(n int) Window {
	return Window{Lo: max(w.Lo, 0), Hi: min(w.Hi, n)}
}

// Weights for the fused score.
type Weights struct {
	Lexical    float64 `json:"lexical"`
	Position   float64 `json:"position"`
	Typography float64 `json:"typography"`
	Semantic   float64 `json:"semantic"`
}

// Options configures scoring and acceptance.
type Options struct {
	FuzzyThreshold     float64
	MinLexical         float64
	MinSemantic        float64
	Weights            Weights
	NumericBonus       float64
	BandPenalty        float64
	ChildHintBonus     float64
	ChildHintLookahead int
	Tiebreak           Tiebreak
	Semantic           bool
}

// DefaultOptions returns the scoring defaults.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: 0.80,
		MinLexical:     0.30,
		MinSemantic:    0.25,
		Weights: Weights{
			Lexical:    0.60,
			Position:   0.25,
			Typography: 0.15,
			Semantic:   0.20,
		},
		NumericBonus:       0.25,
		BandPenalty:        0.15,
		ChildHintBonus:     0.05,
		ChildHintLookahead: 30,
		Tiebreak:           TiebreakEarliest,
	}
}

// Query asks for the lines that may start one heading.
type Query struct {
	Node           int
	Numbering      string
	Title          string
	Window         Window
	RequireNumeric bool
	Exclude        map[int]bool
}

// Candidate is one scored line.
type Candidate struct {
	Pos        int     `json:"pos"`
	Index      int     `json:"global_index"`
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Lexical    float64 `json:"lexical"`
	Position   float64 `json:"position"`
	Typography float64 `json:"typography"`
	Semantic   float64 `json:"semantic"`
	Numeric    bool    `json:"numeric"`
	ChildHint  bool    `json:"child_hint"`
	Banded     bool    `json:"banded"`
	Match      float64 `json:"match"`
	Fused      float64 `json:"fused"`
	Accepted   bool    `json:"accepted"`
}

// Input is the per-document state a Generator scores against.
type Input struct {
	Lines      []document.Line
	Normalized []string
	Noise      *noise.Result
	Normalizer *normalize.Normalizer
	Scorer     similarity.Scorer
	Tracer     *trace.Tracer
}

// Generator scores lines of one document. It is not safe for concurrent use.
type Generator struct {
	in   Input
	opts Options

	position   []float64
	typography []float64

	patterns     map[string]*regexp.Regexp
	childHints   map[string]*regexp.Regexp
	childHintHit map[string][]bool
}

// NewGenerator precomputes layout features for in.
func NewGenerator(in Input, opts Options) *Generator {
	if in.Normalizer == nil {
		in.Normalizer = normalize.New(normalize.DefaultOptions())
	}
	if opts.Tiebreak == "" {
		opts.Tiebreak = TiebreakEarliest
	}
	g := &Generator{
		in:           in,
		opts:         opts,
		patterns:     make(map[string]*regexp.Regexp),
		childHints:   make(map[string]*regexp.Regexp),
		childHintHit: make(map[string][]bool),
	}
	g.position, g.typography = layoutFeatures(in.Lines)
	return g
}

// Options returns the generator configuration.
func (g *Generator) Options() Options {
	return g.opts
}

// Want returns the normalized text a heading is matched against.
func (g *Generator) Want(numberingText, title string) string {
	return g.in.Normalizer.Normalize(strings.TrimSpace(numberingText + " " + title))
}

// Generate returns the surviving candidates in q.Window, accepted ones first,
// each group ordered by fused score and then by the tiebreak.
func (g *Generator) Generate(ctx context.Context, q Query) ([]Candidate, error) {
	w := q.Window.Clip(len(g.in.Lines))
	if w.Empty() {
		return nil, nil
	}
	want := g.Want(q.Numbering, q.Title)
	if want == "" {
		return nil, nil
	}
	pattern := g.pattern(q.Numbering)

	var out []Candidate
	for pos := w.Lo; pos < w.Hi; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.Exclude[pos] || g.in.Noise.Skip(pos) {
			continue
		}
		text := g.in.Normalized[pos]
		if text == "" {
			continue
		}
		numeric := pattern != nil && pattern.MatchString(text)
		if q.RequireNumeric && !numeric {
			continue
		}
		lex := TokenSetRatio(want, text)
		if lex < g.opts.MinLexical {
			continue
		}

		c := Candidate{
			Pos:        pos,
			Index:      g.in.Lines[pos].Index,
			Page:       g.in.Lines[pos].Page,
			Text:       g.in.Lines[pos].Text,
			Lexical:    lex,
			Position:   g.position[pos],
			Typography: g.typography[pos],
			Numeric:    numeric,
			ChildHint:  g.childHint(q.Numbering, pos),
			Banded:     g.in.Noise.Banded(pos),
		}

		if g.opts.Semantic && g.in.Scorer != nil {
			sem, err := g.in.Scorer.Similarity(ctx, want, text)
			if err != nil {
				return nil, fmt.Errorf("failed to score semantic similarity for line %d: %w", c.Index, err)
			}
			if sem < g.opts.MinSemantic {
				continue
			}
			c.Semantic = sem
		}

		g.score(&c)
		g.in.Tracer.Emit(trace.CandidateFound, "node", q.Node, "line", c.Index, "page", c.Page)
		g.in.Tracer.Emit(trace.CandidateScored,
			"node", q.Node,
			"line", c.Index,
			"lexical", round(c.Lexical),
			"position", round(c.Position),
			"typography", round(c.Typography),
			"semantic", round(c.Semantic),
			"numeric", c.Numeric,
			"child_hint", c.ChildHint,
			"banded", c.Banded,
			"match", round(c.Match),
			"fused", round(c.Fused),
			"accepted", c.Accepted,
		)
		out = append(out, c)
	}

	g.sort(out)
	return out, nil
}

// score sets Match, which decides acceptance, and Fused, which ranks. The
// band penalty lowers Fused only.
func (g *Generator) score(c *Candidate) {
	var adjust float64
	if c.Numeric {
		adjust += g.opts.NumericBonus
	}
	if c.ChildHint {
		adjust += g.opts.ChildHintBonus
	}

	w := g.opts.Weights
	c.Match = c.Lexical + adjust
	c.Fused = w.Lexical*c.Lexical + w.Position*c.Position + w.Typography*c.Typography + adjust
	if c.Banded {
		c.Fused -= g.opts.BandPenalty
	}
	if g.opts.Semantic {
		c.Fused += w.Semantic * c.Semantic
	}
	c.Accepted = c.Match >= g.opts.FuzzyThreshold-Epsilon
}

func (g *Generator) sort(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Accepted != b.Accepted {
			return a.Accepted
		}
		if math.Abs(a.Fused-b.Fused) > Epsilon {
			return a.Fused > b.Fused
		}
		if g.opts.Tiebreak == TiebreakLast {
			return a.Pos > b.Pos
		}
		return a.Pos < b.Pos
	})
}

// Best returns the accepted candidate with the highest fused score; ties go
// to the earliest position, or the latest with TiebreakLast.
func Best(cands []Candidate, tiebreak Tiebreak) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range cands {
		if !c.Accepted {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		switch {
		case c.Fused > best.Fused+Epsilon:
			best = c
		case math.Abs(c.Fused-best.Fused) <= Epsilon:
			if (tiebreak == TiebreakLast && c.Pos > best.Pos) || (tiebreak != TiebreakLast && c.Pos < best.Pos) {
				best = c
			}
		}
	}
	return best, found
}

// Duplicates returns the positions after pos inside w whose normalized text
// equals the text at pos.
func (g *Generator) Duplicates(pos int, w Window) []int {
	w = w.Clip(len(g.in.Lines))
	if pos < 0 || pos >= len(g.in.Normalized) {
		return nil
	}
	text := g.in.Normalized[pos]
	var out []int
	for p := max(pos+1, w.Lo); p < w.Hi; p++ {
		if g.in.Normalized[p] == text && !g.in.Noise.Skip(p) {
			out = append(out, p)
		}
	}
	return out
}

func (g *Generator) pattern(num string) *regexp.Regexp {
	num = strings.TrimSpace(num)
	if num == "" || len(numbering.Tokens(num)) == 0 {
		return nil
	}
	re, ok := g.patterns[num]
	if !ok {
		re = numbering.Pattern(num)
		g.patterns[num] = re
	}
	return re
}

// childHint reports whether a child number of num starts one of the lines
// following pos.
func (g *Generator) childHint(num string, pos int) bool {
	num = strings.TrimSpace(num)
	if num == "" || g.opts.ChildHintLookahead <= 0 {
		return false
	}
	hits, ok := g.childHintHit[num]
	if !ok {
		re, cached := g.childHints[num]
		if !cached {
			re = numbering.ChildHintPattern(num)
			g.childHints[num] = re
		}
		hits = make([]bool, len(g.in.Normalized))
		if re != nil {
			for i, text := range g.in.Normalized {
				hits[i] = re.MatchString(text)
			}
		}
		g.childHintHit[num] = hits
	}
	end := min(pos+1+g.opts.ChildHintLookahead, len(hits))
	for i := pos + 1; i < end; i++ {
		if hits[i] && !g.in.Noise.Skip(i) {
			return true
		}
	}
	return false
}

// layoutFeatures computes per-line position and typography in [0,1].
// Position favors lines near the top of their page; typography is the font
// rank relative to the most prominent rank on the page.
func layoutFeatures(lines []document.Line) (position, typography []float64) {
	position = make([]float64, len(lines))
	typography = make([]float64, len(lines))

	pages := make(map[int][]int)
	var order []int
	for i, ln := range lines {
		if _, ok := pages[ln.Page]; !ok {
			order = append(order, ln.Page)
		}
		pages[ln.Page] = append(pages[ln.Page], i)
	}

	for _, page := range order {
		positions := pages[page]

		allBoxes := true
		minY, maxY := math.Inf(1), math.Inf(-1)
		maxRank := 0
		for _, p := range positions {
			ln := lines[p]
			if ln.BBox == nil {
				allBoxes = false
			} else {
				minY = math.Min(minY, ln.BBox.Y0)
				maxY = math.Max(maxY, ln.BBox.Y0)
			}
			if ln.FontRank != nil && *ln.FontRank > maxRank {
				maxRank = *ln.FontRank
			}
		}

		for k, p := range positions {
			ln := lines[p]
			switch {
			case allBoxes && maxY > minY:
				position[p] = 1 - (ln.BBox.Y0-minY)/(maxY-minY)
			case allBoxes:
				position[p] = 1
			case len(positions) > 1:
				position[p] = 1 - float64(k)/float64(len(positions)-1)
			default:
				position[p] = 1
			}
			if maxRank > 0 && ln.FontRank != nil && *ln.FontRank > 0 {
				typography[p] = float64(*ln.FontRank) / float64(maxRank)
			}
		}
	}
	return position, typography
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
