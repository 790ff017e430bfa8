// Package locator finds the line where each outline heading begins and
// partitions the document into sections.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jackzampolin/headloc/internal/candidate"
	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/metrics"
	"github.com/jackzampolin/headloc/internal/noise"
	"github.com/jackzampolin/headloc/internal/normalize"
	"github.com/jackzampolin/headloc/internal/sections"
	"github.com/jackzampolin/headloc/internal/similarity"
	"github.com/jackzampolin/headloc/internal/svcctx"
	"github.com/jackzampolin/headloc/internal/trace"
)

// DedupePolicy picks which heading keeps a line claimed by several.
type DedupePolicy string

const (
	// DedupeBest keeps the heading with the highest fused score.
	DedupeBest DedupePolicy = "best"
	// DedupeFirst keeps the heading that comes first in the outline.
	DedupeFirst DedupePolicy = "first"
)

// Options configures a Locator.
type Options struct {
	Normalize normalize.Options
	Noise     noise.Options
	Candidate candidate.Options

	// WindowPad is how many lines before its parent's anchor a child search
	// may start.
	WindowPad int
	// RequireNumericLevels lists outline levels searched by numbering first.
	RequireNumericLevels []int
	// LastOccurrenceFallback moves a choice on a claimed line to a later
	// line with the same text.
	LastOccurrenceFallback bool
	MaxPasses              int
	DedupePolicy           DedupePolicy
}

// DefaultOptions returns the locator defaults.
func DefaultOptions() Options {
	return Options{
		Normalize:              normalize.DefaultOptions(),
		Noise:                  noise.DefaultOptions(),
		Candidate:              candidate.DefaultOptions(),
		WindowPad:              40,
		RequireNumericLevels:   []int{1},
		LastOccurrenceFallback: true,
		MaxPasses:              2,
		DedupePolicy:           DedupeBest,
	}
}

// Status is the resolution state of a heading.
type Status string

const (
	StatusUnresolved   Status = "unresolved"
	StatusResolved     Status = "resolved"
	StatusUnresolvable Status = "unresolvable"
)

// Resolution strategies recorded on anchors.
const (
	StrategyNumeric        = "numeric"
	StrategyText           = "text"
	StrategyTextFallback   = "text_fallback"
	StrategyLastOccurrence = "last_occurrence"
	StrategyReanchor       = "reanchor"
	StrategyDedupeRetry    = "dedupe_retry"
	StrategyMonotonicRetry = "monotonic_retry"
)

// Anchor is the resolution of one outline node. LineIndex and Page are -1
// unless Status is StatusResolved.
type Anchor struct {
	Node      int     `json:"node" yaml:"node"`
	Numbering string  `json:"numbering,omitempty" yaml:"numbering,omitempty"`
	Title     string  `json:"title" yaml:"title"`
	Level     int     `json:"level" yaml:"level"`
	Status    Status  `json:"status" yaml:"status"`
	LineIndex int     `json:"line_index" yaml:"line_index"`
	Page      int     `json:"page" yaml:"page"`
	Text      string  `json:"text,omitempty" yaml:"text,omitempty"`
	Score     float64 `json:"score" yaml:"score"`
	Match     float64 `json:"match" yaml:"match"`
	Strategy  string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// Resolved reports whether the anchor holds a line.
func (a Anchor) Resolved() bool {
	return a.Status == StatusResolved
}

// DiagnosticKind classifies a non-fatal problem.
type DiagnosticKind string

const (
	UnresolvableHeading         DiagnosticKind = "UnresolvableHeading"
	InvariantViolationPersisted DiagnosticKind = "InvariantViolationPersisted"
	AbsorbedHeading             DiagnosticKind = "AbsorbedHeading"
)

// Diagnostic reports one non-fatal problem with a heading.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind" yaml:"kind"`
	Node    int            `json:"node" yaml:"node"`
	Heading string         `json:"heading" yaml:"heading"`
	Message string         `json:"message" yaml:"message"`
}

// Stats summarizes a run.
type Stats struct {
	Lines        int            `json:"lines" yaml:"lines"`
	Pages        int            `json:"pages" yaml:"pages"`
	Headings     int            `json:"headings" yaml:"headings"`
	Resolved     int            `json:"resolved" yaml:"resolved"`
	Unresolvable int            `json:"unresolvable" yaml:"unresolvable"`
	TOCLines     int            `json:"toc_lines" yaml:"toc_lines"`
	RunningLines int            `json:"running_lines" yaml:"running_lines"`
	Passes       int            `json:"passes" yaml:"passes"`
	Corrections  int            `json:"corrections" yaml:"corrections"`
	Strategies   map[string]int `json:"strategies,omitempty" yaml:"strategies,omitempty"`
	Duration     time.Duration  `json:"duration_ns" yaml:"duration_ns"`
}

// Request is one document to locate headings in.
type Request struct {
	Document *document.Document
	Outline  *document.Outline
	// Scorer supplies semantic similarity when semantic scoring is on. It is
	// owned by the caller and may be shared between concurrent requests.
	Scorer similarity.Scorer
	// Tracer receives decision events. Nil disables tracing unless the
	// service context names a trace directory.
	Tracer *trace.Tracer
}

// Result is the outcome of a run.
type Result struct {
	DocumentID  string             `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	RunID       string             `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Anchors     []Anchor           `json:"anchors" yaml:"anchors"`
	Preamble    *sections.Section  `json:"preamble,omitempty" yaml:"preamble,omitempty"`
	Sections    []sections.Section `json:"sections" yaml:"sections"`
	Unassigned  []int              `json:"unassigned,omitempty" yaml:"unassigned,omitempty"`
	Diagnostics []Diagnostic       `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Noise       []noise.Flags      `json:"-" yaml:"-"`
	Stats       Stats              `json:"stats" yaml:"stats"`
	TracePath   string             `json:"trace_path,omitempty" yaml:"trace_path,omitempty"`
}

// Partition returns the preamble and sections as a sections.Partition.
func (r *Result) Partition() *sections.Partition {
	return &sections.Partition{Preamble: r.Preamble, Sections: r.Sections, Unassigned: r.Unassigned}
}

// Locator runs the pipeline. It holds no per-document state and is safe
// for concurrent use.
type Locator struct {
	opts       Options
	normalizer *normalize.Normalizer
	classifier *noise.Classifier
}

// New creates a Locator.
func New(opts Options) *Locator {
	if opts.DedupePolicy == "" {
		opts.DedupePolicy = DedupeBest
	}
	return &Locator{
		opts:       opts,
		normalizer: normalize.New(opts.Normalize),
		classifier: noise.New(opts.Noise),
	}
}

// Options returns the locator configuration.
func (l *Locator) Options() Options {
	return l.opts
}

// Locate resolves every heading of req.Outline against req.Document. Only
// input shape problems, cancellation and semantic scorer failures return an
// error; headings that cannot be placed are reported in the result.
func (l *Locator) Locate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	logger := svcctx.LoggerFrom(ctx)

	res, err := l.locate(ctx, req, start)
	if err != nil {
		docID := ""
		if req.Document != nil {
			docID = req.Document.ID
		}
		if logger != nil {
			logger.Warn("locate failed", "document", docID, "error", err)
		}
		l.recordError(ctx, docID, req.Tracer.RunID(), err, time.Since(start))
		return nil, err
	}

	if logger != nil {
		logger.Info("located headings",
			"document", res.DocumentID,
			"run_id", res.RunID,
			"headings", res.Stats.Headings,
			"resolved", res.Stats.Resolved,
			"unresolvable", res.Stats.Unresolvable,
			"corrections", res.Stats.Corrections,
			"duration", res.Stats.Duration,
		)
	}
	return res, nil
}

func (l *Locator) locate(ctx context.Context, req Request, start time.Time) (*Result, error) {
	if req.Document == nil {
		return nil, &document.InputShapeError{Field: "lines", Reason: "document is required"}
	}
	if req.Outline == nil {
		return nil, &document.InputShapeError{Field: "outline", Reason: "outline is required"}
	}
	if err := req.Document.Validate(); err != nil {
		return nil, err
	}
	outline, err := document.NewOutline(req.Outline.Nodes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := req.Document
	tr := req.Tracer
	traceDir := svcctx.TraceDirFrom(ctx)
	if tr == nil && traceDir != "" {
		tr = trace.New(doc.ID)
	}
	if logger := svcctx.LoggerFrom(ctx); logger != nil && logger.Enabled(ctx, slog.LevelDebug) {
		tr.WithLogger(logger)
	}
	tr.Emit(trace.StartRun, "document", doc.ID, "lines", len(doc.Lines), "headings", outline.Len())

	normalized := l.normalizer.Strings(lineTexts(doc.Lines))
	flags := l.classifier.Classify(doc.Lines, normalized)

	scorer, err := l.scorer(ctx, req, normalized, flags, outline)
	if err != nil {
		return nil, err
	}
	var hits0, misses0 int64
	es, cached := scorer.(*similarity.EmbeddingScorer)
	if cached {
		hits0, misses0 = es.Stats()
	}

	gen := candidate.NewGenerator(candidate.Input{
		Lines:      doc.Lines,
		Normalized: normalized,
		Noise:      flags,
		Normalizer: l.normalizer,
		Scorer:     scorer,
		Tracer:     tr,
	}, l.opts.Candidate)

	r := newRun(l.opts, doc.Lines, outline, gen, tr)
	if err := r.resolve(ctx); err != nil {
		return nil, err
	}
	if err := r.enforce(ctx); err != nil {
		return nil, err
	}

	part := sections.Build(doc.Lines, outline, r.positions())
	res := &Result{
		DocumentID: doc.ID,
		RunID:      tr.RunID(),
		Anchors:    r.anchors(),
		Preamble:   part.Preamble,
		Sections:   part.Sections,
		Unassigned: part.Unassigned,
		Noise:      flags.Flags,
	}
	res.Diagnostics = append(r.diagnostics, absorbedDiagnostics(outline, part)...)
	res.Stats = r.stats()
	res.Stats.Lines = len(doc.Lines)
	res.Stats.Pages = doc.PageCount()
	res.Stats.TOCLines, res.Stats.RunningLines = flags.Counts()
	res.Stats.Duration = time.Since(start)

	tr.Emit(trace.EndRun,
		"resolved", res.Stats.Resolved,
		"unresolvable", res.Stats.Unresolvable,
		"passes", res.Stats.Passes,
		"corrections", res.Stats.Corrections,
	)
	if traceDir != "" {
		path, _, err := tr.Flush(traceDir)
		if err != nil {
			return nil, fmt.Errorf("failed to flush trace: %w", err)
		}
		res.TracePath = path
	}

	m := res.metric()
	if cached {
		hits, misses := es.Stats()
		m.Embedder = es.Name()
		m.CacheHits, m.CacheMisses = int(hits-hits0), int(misses-misses0)
	}
	m.Semantic = l.opts.Candidate.Semantic && scorer != nil
	l.record(ctx, m)
	return res, nil
}

// scorer picks the semantic scorer for req and warms it with every text the
// run may compare.
func (l *Locator) scorer(ctx context.Context, req Request, normalized []string, flags *noise.Result, outline *document.Outline) (similarity.Scorer, error) {
	if !l.opts.Candidate.Semantic {
		return nil, nil
	}
	scorer := req.Scorer
	if scorer == nil {
		if s := svcctx.ScorerFrom(ctx); s != nil {
			scorer = s
		}
	}
	if scorer == nil {
		if logger := svcctx.LoggerFrom(ctx); logger != nil {
			logger.Warn("semantic scoring enabled without a scorer; using lexical and layout only")
		}
		return nil, nil
	}

	w, ok := scorer.(similarity.Warmer)
	if !ok {
		return scorer, nil
	}
	var texts []string
	for pos, text := range normalized {
		if text != "" && !flags.Skip(pos) {
			texts = append(texts, text)
		}
	}
	for _, h := range outline.Nodes {
		texts = append(texts, l.normalizer.Normalize(strings.TrimSpace(h.Numbering+" "+h.Title)))
	}
	if err := w.Warm(ctx, texts); err != nil {
		return nil, fmt.Errorf("failed to warm semantic scorer: %w", err)
	}
	return scorer, nil
}

func (res *Result) metric() metrics.Metric {
	return metrics.Metric{
		RunID:        res.RunID,
		DocumentID:   res.DocumentID,
		Lines:        res.Stats.Lines,
		Pages:        res.Stats.Pages,
		Headings:     res.Stats.Headings,
		Resolved:     res.Stats.Resolved,
		Unresolvable: res.Stats.Unresolvable,
		Corrections:  res.Stats.Corrections,
		Passes:       res.Stats.Passes,
		Strategies:   res.Stats.Strategies,
		TOCLines:     res.Stats.TOCLines,
		RunningLines: res.Stats.RunningLines,
		TotalSeconds: res.Stats.Duration.Seconds(),
		Success:      true,
		CreatedAt:    time.Now(),
	}
}

func (l *Locator) record(ctx context.Context, m metrics.Metric) {
	rec := svcctx.MetricsFrom(ctx)
	if rec == nil {
		return
	}
	if _, err := rec.Record(context.WithoutCancel(ctx), m); err != nil {
		if logger := svcctx.LoggerFrom(ctx); logger != nil {
			logger.Warn("failed to record metric", "document", m.DocumentID, "error", err)
		}
	}
}

func (l *Locator) recordError(ctx context.Context, docID, runID string, err error, d time.Duration) {
	rec := svcctx.MetricsFrom(ctx)
	if rec == nil {
		return
	}
	opts := metrics.RecordOpts{RunID: runID, DocumentID: docID}
	if _, rerr := rec.RecordError(context.WithoutCancel(ctx), opts, errorType(err), d); rerr != nil {
		if logger := svcctx.LoggerFrom(ctx); logger != nil {
			logger.Warn("failed to record metric", "document", docID, "error", rerr)
		}
	}
}

// errorType names an error for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, document.ErrInputShape):
		return "input_shape"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "error"
	}
}

func absorbedDiagnostics(outline *document.Outline, part *sections.Partition) []Diagnostic {
	var out []Diagnostic
	for _, s := range part.All() {
		for _, node := range s.Absorbed {
			out = append(out, Diagnostic{
				Kind:    AbsorbedHeading,
				Node:    node,
				Heading: outline.Nodes[node].Label(),
				Message: fmt.Sprintf("content absorbed into section %s", s.Key),
			})
		}
	}
	for _, node := range part.Unassigned {
		out = append(out, Diagnostic{
			Kind:    AbsorbedHeading,
			Node:    node,
			Heading: outline.Nodes[node].Label(),
			Message: "no enclosing section to absorb content",
		})
	}
	slices.SortStableFunc(out, func(a, b Diagnostic) int { return a.Node - b.Node })
	return out
}

func lineTexts(lines []document.Line) []string {
	out := make([]string, len(lines))
	for i, ln := range lines {
		out[i] = ln.Text
	}
	return out
}
