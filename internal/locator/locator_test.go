package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jackzampolin/headloc/internal/candidate"
	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/metrics"
	"github.com/jackzampolin/headloc/internal/providers"
	"github.com/jackzampolin/headloc/internal/similarity"
	"github.com/jackzampolin/headloc/internal/svcctx"
	"github.com/jackzampolin/headloc/internal/trace"
)

type page struct {
	num   int
	texts []string
}

func newDoc(id string, pages ...page) *document.Document {
	doc := &document.Document{ID: id}
	for _, p := range pages {
		for _, text := range p.texts {
			doc.Lines = append(doc.Lines, document.Line{Index: len(doc.Lines), Page: p.num, Text: text})
		}
	}
	return doc
}

func heading(num, title string, level, parent int) document.Heading {
	return document.Heading{Numbering: num, Title: title, Level: level, Parent: parent}
}

func newOutline(t *testing.T, nodes ...document.Heading) *document.Outline {
	t.Helper()
	o, err := document.NewOutline(nodes)
	if err != nil {
		t.Fatalf("NewOutline() error = %v", err)
	}
	return o
}

// manualFixture is a clean five-page manual with a two-level outline.
func manualFixture(t *testing.T) (*document.Document, *document.Outline) {
	doc := newDoc("manual",
		page{1, []string{"Pump Controller Manual", "Revision C", "Prepared for field crews"}},
		page{2, []string{"1 Introduction", "This manual covers the unit.", "Read every warning before you begin."}},
		page{3, []string{"1.1 Purpose", "Operators use the controller daily.", "1.2 Audience", "Field technicians with basic training."}},
		page{4, []string{"2 Installation", "Mount the unit on a level bracket.", "2.1 Mounting", "Use four anchor bolts.", "2.2 Wiring", "Route cables through the gland."}},
		page{5, []string{"3 Maintenance", "Inspect seals every quarter.", "3.1 Cleaning", "Wipe the housing with a damp cloth."}},
	)
	ol := newOutline(t,
		heading("1", "Introduction", 1, -1),
		heading("1.1", "Purpose", 2, 0),
		heading("1.2", "Audience", 2, 0),
		heading("2", "Installation", 1, -1),
		heading("2.1", "Mounting", 2, 3),
		heading("2.2", "Wiring", 2, 3),
		heading("3", "Maintenance", 1, -1),
		heading("3.1", "Cleaning", 2, 6),
	)
	return doc, ol
}

var manualAnchors = []int{3, 6, 8, 10, 12, 14, 16, 18}

// gracefulFixture lacks the line for "2.3 Calibration Procedure".
func gracefulFixture(t *testing.T) (*document.Document, *document.Outline) {
	doc := newDoc("handbook",
		page{1, []string{"Inspection Handbook", "Issued by the quality office"}},
		page{2, []string{"1 Overview", "Inspections happen before each shift."}},
		page{3, []string{"2 Equipment", "2.1 Tools", "Carry a torque wrench and a flashlight.", "2.2 Gauges", "Readings are in kilopascals."}},
		page{4, []string{"Record readings on the log sheet.", "Return everything to the crib."}},
		page{5, []string{"3 Reporting", "File the report within a day."}},
	)
	ol := newOutline(t,
		heading("1", "Overview", 1, -1),
		heading("2", "Equipment", 1, -1),
		heading("2.1", "Tools", 2, 1),
		heading("2.2", "Gauges", 2, 1),
		heading("2.3", "Calibration Procedure", 2, 1),
		heading("3", "Reporting", 1, -1),
	)
	return doc, ol
}

func locate(t *testing.T, opts Options, doc *document.Document, ol *document.Outline) *Result {
	t.Helper()
	res, err := New(opts).Locate(context.Background(), Request{Document: doc, Outline: ol})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	checkInvariants(t, doc, ol, res)
	return res
}

// checkInvariants verifies ordering, containment and the partition law.
func checkInvariants(t *testing.T, doc *document.Document, ol *document.Outline, res *Result) {
	t.Helper()
	if len(res.Anchors) != ol.Len() {
		t.Fatalf("len(Anchors) = %d, want %d", len(res.Anchors), ol.Len())
	}
	prev := -1
	for _, a := range res.Anchors {
		if !a.Resolved() {
			if a.LineIndex != -1 || a.Page != -1 {
				t.Errorf("unresolved anchor %d has line %d page %d", a.Node, a.LineIndex, a.Page)
			}
			continue
		}
		if a.LineIndex <= prev {
			t.Errorf("anchor %d at line %d does not follow line %d", a.Node, a.LineIndex, prev)
		}
		prev = a.LineIndex
	}

	part := res.Partition()
	for i, h := range ol.Nodes {
		a := res.Anchors[i]
		if !a.Resolved() || h.Parent < 0 || !res.Anchors[h.Parent].Resolved() {
			continue
		}
		parent, ok := part.ForHeading(h.Parent)
		if !ok {
			t.Errorf("no section for resolved heading %d", h.Parent)
			continue
		}
		if a.LineIndex <= parent.StartIndex || a.LineIndex > parent.SubtreeEndIndex {
			t.Errorf("anchor %d at line %d outside parent span %d-%d",
				i, a.LineIndex, parent.StartIndex, parent.SubtreeEndIndex)
		}
	}
	if err := part.Check(doc.Lines); err != nil {
		t.Errorf("Partition().Check() error = %v", err)
	}
}

func lineIndices(res *Result) []int {
	out := make([]int, len(res.Anchors))
	for i, a := range res.Anchors {
		out[i] = a.LineIndex
	}
	return out
}

func TestLocateManual(t *testing.T) {
	doc, ol := manualFixture(t)
	res := locate(t, DefaultOptions(), doc, ol)

	if got := lineIndices(res); !reflect.DeepEqual(got, manualAnchors) {
		t.Errorf("anchor lines = %v, want %v", got, manualAnchors)
	}
	if res.Preamble == nil || res.Preamble.StartIndex != 0 || res.Preamble.EndIndex != 2 {
		t.Errorf("Preamble = %+v, want lines 0-2", res.Preamble)
	}
	if len(res.Sections) != ol.Len() {
		t.Errorf("len(Sections) = %d, want %d", len(res.Sections), ol.Len())
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", res.Diagnostics)
	}

	s := res.Stats
	if s.Lines != 20 || s.Pages != 5 || s.Headings != 8 || s.Resolved != 8 || s.Unresolvable != 0 {
		t.Errorf("Stats = %+v", s)
	}
	if s.Corrections != 0 || s.Passes != 1 {
		t.Errorf("Stats corrections/passes = %d/%d, want 0/1", s.Corrections, s.Passes)
	}
	if s.Strategies[StrategyNumeric] != 8 {
		t.Errorf("Strategies = %v, want 8 numeric", s.Strategies)
	}

	if got := res.Anchors[1].Page; got != 3 {
		t.Errorf("Anchors[1].Page = %d, want 3", got)
	}
	if got := res.Anchors[4].Text; got != "2.1 Mounting" {
		t.Errorf("Anchors[4].Text = %q, want %q", got, "2.1 Mounting")
	}
}

func TestLocateIdempotent(t *testing.T) {
	doc, ol := manualFixture(t)
	l := New(DefaultOptions())
	req := Request{Document: doc, Outline: ol}

	first, err := l.Locate(context.Background(), req)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	second, err := l.Locate(context.Background(), req)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}

	if !reflect.DeepEqual(first.Anchors, second.Anchors) {
		t.Errorf("Anchors differ between runs:\n%v\n%v", first.Anchors, second.Anchors)
	}
	if !reflect.DeepEqual(first.Partition(), second.Partition()) {
		t.Errorf("partitions differ between runs")
	}
	first.Stats.Duration, second.Stats.Duration = 0, 0
	if !reflect.DeepEqual(first.Stats, second.Stats) {
		t.Errorf("Stats = %+v, want %+v", second.Stats, first.Stats)
	}
}

func TestLocateSkipsTableOfContents(t *testing.T) {
	doc := newDoc("standard",
		page{1, []string{
			"Contents",
			"1 Scope ........ 3",
			"2 Definitions ........ 5",
			"3. Safety Requirements ........ 12",
			"4 Testing ........ 20",
		}},
		page{3, []string{"1 Scope", "This standard applies to pressure vessels."}},
		page{5, []string{"2 Definitions", "Terms used in this standard are listed below."}},
		page{12, []string{"3. Safety Requirements", "Operators shall wear protective gear."}},
		page{20, []string{"4 Testing", "Hydrostatic tests run at rated load."}},
	)
	ol := newOutline(t,
		heading("1", "Scope", 1, -1),
		heading("2", "Definitions", 1, -1),
		heading("3", "Safety Requirements", 1, -1),
		heading("4", "Testing", 1, -1),
	)
	res := locate(t, DefaultOptions(), doc, ol)

	if got, want := lineIndices(res), []int{5, 7, 9, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("anchor lines = %v, want %v", got, want)
	}
	if got := res.Anchors[2].Page; got != 12 {
		t.Errorf("Safety Requirements page = %d, want 12", got)
	}
	if res.Stats.TOCLines != 5 {
		t.Errorf("Stats.TOCLines = %d, want 5", res.Stats.TOCLines)
	}
	for i := 0; i < 5; i++ {
		if !res.Noise[i].TOC {
			t.Errorf("Noise[%d].TOC = false, want true", i)
		}
	}
	if res.Preamble == nil || res.Preamble.EndIndex != 4 {
		t.Errorf("Preamble = %+v, want the contents page", res.Preamble)
	}
}

func TestLocateNumberedClausesAreNotContents(t *testing.T) {
	doc := newDoc("spec",
		page{1, []string{"Project Manual", "Division one requirements"}},
		page{2, []string{
			"1 General", "1.1 Summary", "1.2 References", "1.3 Submittals",
			"1.4 Quality Assurance", "1.5 Delivery", "1.6 Warranty",
		}},
		page{3, []string{
			"3 Execution",
			"3.1 The contractor shall examine substrates before work begins.",
			"3.2 The contractor shall protect adjacent finishes from damage.",
			"3.3 Install anchors at the spacing shown on the drawings.",
			"3.4 Clean all surfaces before the sealant is applied.",
			"3.5 Field quality control follows the inspection schedule.",
			"3.6 Repair damaged coatings with the approved touch-up kit.",
		}},
		page{4, []string{"4 Closeout", "Submit record drawings at handover."}},
	)
	ol := newOutline(t,
		heading("1", "General", 1, -1),
		heading("1.1", "Summary", 2, 0),
		heading("1.2", "References", 2, 0),
		heading("3", "Execution", 1, -1),
		heading("4", "Closeout", 1, -1),
	)
	res := locate(t, DefaultOptions(), doc, ol)

	if got, want := lineIndices(res), []int{2, 3, 4, 9, 16}; !reflect.DeepEqual(got, want) {
		t.Errorf("anchor lines = %v, want %v", got, want)
	}
	if res.Stats.TOCLines != 0 {
		t.Errorf("Stats.TOCLines = %d, want 0", res.Stats.TOCLines)
	}
	if u := res.Unresolved(); len(u) != 0 {
		t.Errorf("Unresolved() = %+v, want none", u)
	}
}

func TestLocateNoisyHeadingAtTopOfPage(t *testing.T) {
	doc := newDoc("report",
		page{1, []string{
			"1 Summary",
			"The pressure vessel was filled with water at ambient temperature.",
			"Gauges were calibrated by the plant laboratory beforehand.",
			"The hold period lasted thirty minutes without a drop.",
			"No leaks were observed at flanges or welded seams.",
			"The inspector signed the certificate on site.",
			"Relief valves lifted within their rated tolerance.",
			"Drain lines were opened after the hold period ended.",
			"The vessel was dried with compressed air.",
			"Nameplate details were recorded in the log.",
			"Photographs were taken of every nozzle.",
			"The vessel returned to service the next morning.",
		}},
		page{2, []string{
			"Appendlx B Test Data",
			"Readings were logged every five minutes during the hold.",
			"Ambient temperature stayed between twelve and fifteen degrees.",
			"Gauge one read steady throughout the hold period.",
			"Gauge two showed a small drift at the start.",
			"The drift was traced to a loose fitting.",
			"The fitting was tightened before the hold began.",
			"All readings fall inside the acceptance band.",
			"Raw logs are kept in the quality archive.",
			"Copies went to the client and the insurer.",
			"The archive reference is noted on the cover sheet.",
			"End of report.",
		}},
	)
	ol := newOutline(t,
		heading("1", "Summary", 1, -1),
		heading("", "Appendix B Test Data", 1, -1),
	)
	opts := DefaultOptions()
	res := locate(t, opts, doc, ol)

	if got, want := lineIndices(res), []int{0, 12}; !reflect.DeepEqual(got, want) {
		t.Fatalf("anchor lines = %v, want %v", got, want)
	}
	a := res.Anchors[1]
	if a.Match >= 1 || a.Match < opts.Candidate.FuzzyThreshold {
		t.Errorf("Anchors[1].Match = %v, want a near match above %v", a.Match, opts.Candidate.FuzzyThreshold)
	}
	if a.Page != 2 {
		t.Errorf("Anchors[1].Page = %d, want 2", a.Page)
	}
}

func TestLocateToleratesOCRTitles(t *testing.T) {
	doc := newDoc("notes",
		page{1, []string{"Operating Notes", "SECTlON 4", "Keep the panel closed while energized."}},
		page{2, []string{"4.l Pressure Limits", "Never exceed the rated load."}},
		page{3, []string{"SECTlON 5 Electrical Safety", "Lock out the breaker first."}},
	)
	ol := newOutline(t,
		heading("", "SECTION 4", 1, -1),
		heading("4.1", "Pressure Limits", 2, 0),
		heading("5", "Electrical Safety", 1, -1),
	)
	opts := DefaultOptions()
	res := locate(t, opts, doc, ol)

	if got, want := lineIndices(res), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("anchor lines = %v, want %v", got, want)
	}
	if got := res.Anchors[0].Match; got < opts.Candidate.FuzzyThreshold {
		t.Errorf("Anchors[0].Match = %v, want >= %v", got, opts.Candidate.FuzzyThreshold)
	}
	if got := res.Anchors[1].Strategy; got != StrategyNumeric {
		t.Errorf("Anchors[1].Strategy = %q, want %q", got, StrategyNumeric)
	}
	if got := res.Anchors[2].Strategy; got != StrategyTextFallback {
		t.Errorf("Anchors[2].Strategy = %q, want %q", got, StrategyTextFallback)
	}
}

// With folding, "4.l" is the number 4.1 and the numbered line wins. Without
// it only a text search is left, and the bare caption "Pressure Limits" at
// the top of the page outranks the garbled heading.
func TestLocateConfusables(t *testing.T) {
	doc := newDoc("limits",
		page{1, []string{"Operating Notes", "4 Operating Limits", "Values below apply to every vessel in service."}},
		page{2, []string{"Pressure Limits", "Limits depend on the vessel class.", "4.l Pressure Limits", "Never exceed the rated load."}},
	)
	ol := newOutline(t,
		heading("4", "Operating Limits", 1, -1),
		heading("4.1", "Pressure Limits", 2, 0),
	)

	tests := []struct {
		name        string
		confusables bool
		want        []int
		strategy    string
	}{
		{"folding", true, []int{1, 5}, StrategyNumeric},
		{"no folding", false, []int{1, 3}, StrategyTextFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Normalize.Confusables = tt.confusables
			opts.RequireNumericLevels = []int{1, 2}
			res := locate(t, opts, doc, ol)

			if got := lineIndices(res); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("anchor lines = %v, want %v", got, tt.want)
			}
			if got := res.Anchors[1].Strategy; got != tt.strategy {
				t.Errorf("Anchors[1].Strategy = %q, want %q", got, tt.strategy)
			}
		})
	}
}

func duplicateFixture(t *testing.T) (*document.Document, *document.Outline) {
	doc := newDoc("guide",
		page{1, []string{"Field Guide", "Edition two"}},
		page{5, []string{"Appendix A", "Reference tables follow in the annex."}},
		page{12, []string{"Valve bodies are cast steel."}},
		page{25, []string{"Seats are replaceable on site."}},
		page{40, []string{"Appendix A", "Detailed valve tables."}},
	)
	ol := newOutline(t,
		heading("", "Appendix A", 1, -1),
		heading("", "Appendix A", 2, 0),
	)
	return doc, ol
}

func TestLocateDuplicateNumbering(t *testing.T) {
	doc, ol := duplicateFixture(t)

	t.Run("last occurrence", func(t *testing.T) {
		res := locate(t, DefaultOptions(), doc, ol)
		if got := res.Anchors[0].Page; got != 5 {
			t.Errorf("Anchors[0].Page = %d, want 5", got)
		}
		if got := res.Anchors[1].Page; got != 40 {
			t.Errorf("Anchors[1].Page = %d, want 40", got)
		}
		if got := res.Anchors[1].Strategy; got != StrategyLastOccurrence {
			t.Errorf("Anchors[1].Strategy = %q, want %q", got, StrategyLastOccurrence)
		}
		if res.Stats.Corrections != 0 {
			t.Errorf("Stats.Corrections = %d, want 0", res.Stats.Corrections)
		}
	})

	t.Run("dedupe retry", func(t *testing.T) {
		opts := DefaultOptions()
		opts.LastOccurrenceFallback = false
		tr := trace.New(doc.ID)
		res, err := New(opts).Locate(context.Background(), Request{Document: doc, Outline: ol, Tracer: tr})
		if err != nil {
			t.Fatalf("Locate() error = %v", err)
		}
		checkInvariants(t, doc, ol, res)

		if got := res.Anchors[0].Page; got != 5 {
			t.Errorf("Anchors[0].Page = %d, want 5", got)
		}
		if got := res.Anchors[1].Page; got != 40 {
			t.Errorf("Anchors[1].Page = %d, want 40", got)
		}
		if got := res.Anchors[1].Strategy; got != StrategyDedupeRetry {
			t.Errorf("Anchors[1].Strategy = %q, want %q", got, StrategyDedupeRetry)
		}
		if got := tr.Count(trace.DedupeDrop); got != 1 {
			t.Errorf("Count(DedupeDrop) = %d, want 1", got)
		}
		if res.Stats.Corrections != 1 || res.Stats.Passes != 2 {
			t.Errorf("Stats corrections/passes = %d/%d, want 1/2", res.Stats.Corrections, res.Stats.Passes)
		}
	})
}

func TestLocateGracefulDegradation(t *testing.T) {
	doc, ol := gracefulFixture(t)
	res := locate(t, DefaultOptions(), doc, ol)

	if got, want := lineIndices(res), []int{2, 4, 5, 7, -1, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("anchor lines = %v, want %v", got, want)
	}
	if got := res.Anchors[4].Status; got != StatusUnresolvable {
		t.Errorf("Anchors[4].Status = %q, want %q", got, StatusUnresolvable)
	}
	if res.Stats.Resolved != 5 || res.Stats.Unresolvable != 1 {
		t.Errorf("Stats resolved/unresolvable = %d/%d, want 5/1", res.Stats.Resolved, res.Stats.Unresolvable)
	}

	kinds := make(map[DiagnosticKind]int)
	for _, d := range res.Diagnostics {
		if d.Node != 4 {
			t.Errorf("diagnostic for node %d, want only node 4: %+v", d.Node, d)
		}
		kinds[d.Kind]++
	}
	if kinds[UnresolvableHeading] != 1 || kinds[AbsorbedHeading] != 1 {
		t.Errorf("diagnostic kinds = %v", kinds)
	}

	equipment, ok := res.Partition().ForHeading(1)
	if !ok {
		t.Fatal("no section for heading 1")
	}
	if !reflect.DeepEqual(equipment.Absorbed, []int{4}) {
		t.Errorf("Absorbed = %v, want [4]", equipment.Absorbed)
	}
	gauges, _ := res.Partition().ForHeading(3)
	if gauges.EndIndex != 10 {
		t.Errorf("2.2 section ends at %d, want 10", gauges.EndIndex)
	}
}

func TestLocateReanchorsParent(t *testing.T) {
	doc := newDoc("site",
		page{1, []string{"General", "1.1 Scope", "Applies to all site work."}},
		page{2, []string{"Crews follow the permit process.", "1 General", "Site rules are summarized here."}},
		page{3, []string{"2 Design", "Loads are computed per code."}},
	)
	ol := newOutline(t,
		heading("1", "General", 1, -1),
		heading("1.1", "Scope", 2, 0),
		heading("2", "Design", 1, -1),
	)
	tr := trace.New(doc.ID)
	res, err := New(DefaultOptions()).Locate(context.Background(), Request{Document: doc, Outline: ol, Tracer: tr})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	checkInvariants(t, doc, ol, res)

	if got, want := lineIndices(res), []int{0, 1, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("anchor lines = %v, want %v", got, want)
	}
	if got := res.Anchors[0].Strategy; got != StrategyReanchor {
		t.Errorf("Anchors[0].Strategy = %q, want %q", got, StrategyReanchor)
	}
	if got := tr.Count(trace.ReanchorParent); got != 1 {
		t.Errorf("Count(ReanchorParent) = %d, want 1", got)
	}
	if got := tr.Count(trace.InvariantsPassSummary); got != 2 {
		t.Errorf("Count(InvariantsPassSummary) = %d, want 2", got)
	}
}

func TestLocateInputShape(t *testing.T) {
	doc, ol := manualFixture(t)
	gap := newDoc("gap", page{1, []string{"a", "b"}})
	gap.Lines[1].Index = 5

	tests := []struct {
		name string
		req  Request
	}{
		{"nil document", Request{Outline: ol}},
		{"nil outline", Request{Document: doc}},
		{"index gap", Request{Document: gap, Outline: ol}},
		{"empty title", Request{Document: doc, Outline: &document.Outline{Nodes: []document.Heading{
			{Title: " ", Level: 1, Parent: -1},
		}}}},
		{"child not deeper", Request{Document: doc, Outline: &document.Outline{Nodes: []document.Heading{
			{Title: "One", Level: 1, Parent: -1},
			{Title: "Two", Level: 1, Parent: 0},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(DefaultOptions()).Locate(context.Background(), tt.req)
			if !errors.Is(err, document.ErrInputShape) {
				t.Errorf("Locate() error = %v, want ErrInputShape", err)
			}
			if res != nil {
				t.Errorf("Locate() result = %v, want nil", res)
			}
		})
	}
}

func TestLocateCanceled(t *testing.T) {
	doc, ol := manualFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DefaultOptions()).Locate(ctx, Request{Document: doc, Outline: ol}); !errors.Is(err, context.Canceled) {
		t.Errorf("Locate() error = %v, want context.Canceled", err)
	}
}

func TestLocateEmptyDocument(t *testing.T) {
	doc := &document.Document{ID: "empty"}
	ol := newOutline(t, heading("1", "Scope", 1, -1))
	res := locate(t, DefaultOptions(), doc, ol)

	if res.Anchors[0].Status != StatusUnresolvable {
		t.Errorf("Anchors[0].Status = %q, want %q", res.Anchors[0].Status, StatusUnresolvable)
	}
	if len(res.Sections) != 0 || res.Preamble != nil {
		t.Errorf("partition = %+v, want empty", res.Partition())
	}
	if !reflect.DeepEqual(res.Unassigned, []int{0}) {
		t.Errorf("Unassigned = %v, want [0]", res.Unassigned)
	}
}

func TestLocateTrace(t *testing.T) {
	doc, ol := manualFixture(t)
	tr := trace.New(doc.ID)
	res, err := New(DefaultOptions()).Locate(context.Background(), Request{Document: doc, Outline: ol, Tracer: tr})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if res.RunID != tr.RunID() {
		t.Errorf("RunID = %q, want %q", res.RunID, tr.RunID())
	}

	tests := []struct {
		typ  string
		want int
	}{
		{trace.StartRun, 1},
		{trace.EndRun, 1},
		{trace.AnchorResolved, 8},
		{trace.AnchorUnresolvable, 0},
		{trace.InvariantsPassSummary, 1},
		{trace.FallbackTriggered, 0},
	}
	for _, tt := range tests {
		if got := tr.Count(tt.typ); got != tt.want {
			t.Errorf("Count(%s) = %d, want %d", tt.typ, got, tt.want)
		}
	}
	if tr.Count(trace.CandidateScored) < 8 {
		t.Errorf("Count(candidate_scored) = %d, want at least 8", tr.Count(trace.CandidateScored))
	}

	events := tr.Events()
	if events[0].Type != trace.StartRun || events[len(events)-1].Type != trace.EndRun {
		t.Errorf("events run from %s to %s", events[0].Type, events[len(events)-1].Type)
	}
}

func TestLocateRecordsMetricsAndTrace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	ctx := svcctx.WithServices(context.Background(), &svcctx.Services{
		Metrics:  metrics.NewRecorder(path),
		TraceDir: filepath.Join(dir, "traces"),
	})
	doc, ol := manualFixture(t)
	l := New(DefaultOptions())

	res, err := l.Locate(ctx, Request{Document: doc, Outline: ol})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if res.RunID == "" {
		t.Error("RunID is empty with a trace directory")
	}
	if _, err := os.Stat(res.TracePath); err != nil {
		t.Errorf("trace file: %v", err)
	}
	if _, err := l.Locate(ctx, Request{Document: doc}); err == nil {
		t.Fatal("Locate() without outline succeeded")
	}

	got, err := metrics.NewQuery(path).List(context.Background(), metrics.Filter{}, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(got))
	}
	ok := got[0]
	if !ok.Success || ok.DocumentID != "manual" || ok.RunID != res.RunID || ok.Resolved != 8 || ok.Headings != 8 {
		t.Errorf("success metric = %+v", ok)
	}
	if ok.Semantic {
		t.Error("Semantic = true without semantic scoring")
	}
	failed := got[1]
	if failed.Success || failed.ErrorType != "input_shape" || failed.DocumentID != "manual" {
		t.Errorf("error metric = %+v", failed)
	}
}

func TestLocateSemantic(t *testing.T) {
	doc, ol := manualFixture(t)
	opts := DefaultOptions()
	opts.Candidate.Semantic = true

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	ctx := svcctx.WithServices(context.Background(), &svcctx.Services{Metrics: metrics.NewRecorder(path)})
	scorer := similarity.NewEmbeddingScorer(providers.NewHashEmbedder(0), similarity.NewMemoryCache())

	res, err := New(opts).Locate(ctx, Request{Document: doc, Outline: ol, Scorer: scorer})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	checkInvariants(t, doc, ol, res)
	if got := lineIndices(res); !reflect.DeepEqual(got, manualAnchors) {
		t.Errorf("anchor lines = %v, want %v", got, manualAnchors)
	}

	got, err := metrics.NewQuery(path).List(context.Background(), metrics.Filter{}, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("List() = %d metrics, error = %v", len(got), err)
	}
	if !got[0].Semantic || got[0].Embedder != providers.HashEmbedName {
		t.Errorf("metric semantic/embedder = %v/%q", got[0].Semantic, got[0].Embedder)
	}
	if got[0].CacheHits == 0 {
		t.Error("CacheHits = 0, want warmed lookups")
	}
}

func TestLocateSemanticWithoutScorer(t *testing.T) {
	doc, ol := manualFixture(t)
	opts := DefaultOptions()
	opts.Candidate.Semantic = true
	res := locate(t, opts, doc, ol)
	if got := lineIndices(res); !reflect.DeepEqual(got, manualAnchors) {
		t.Errorf("anchor lines = %v, want %v", got, manualAnchors)
	}
}

func TestKeeper(t *testing.T) {
	tests := []struct {
		policy DedupePolicy
		want   int
	}{
		{DedupeBest, 1},
		{DedupeFirst, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			r := &run{opts: Options{DedupePolicy: tt.policy}}
			r.chosen = make([]candidate.Candidate, 3)
			r.chosen[0].Fused = 0.7
			r.chosen[1].Fused = 0.9
			r.chosen[2].Fused = 0.9
			if got := r.keeper([]int{0, 1, 2}); got != tt.want {
				t.Errorf("keeper() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSweepDemotesViolators(t *testing.T) {
	doc, ol := manualFixture(t)
	r := newRun(DefaultOptions(), doc.Lines, ol, nil, nil)
	r.assign(0, candidate.Candidate{Pos: 3, Index: 3}, StrategyNumeric)
	r.assign(1, candidate.Candidate{Pos: 6, Index: 6}, StrategyNumeric)
	r.assign(2, candidate.Candidate{Pos: 5, Index: 5}, StrategyText)
	if got := r.violations(); got != 1 {
		t.Fatalf("violations() = %d, want 1", got)
	}

	r.sweep()
	if got := r.violations(); got != 0 {
		t.Errorf("violations() after sweep = %d, want 0", got)
	}
	if r.status[2] != StatusUnresolvable {
		t.Errorf("status[2] = %q, want %q", r.status[2], StatusUnresolvable)
	}
	if len(r.diagnostics) != 1 || r.diagnostics[0].Kind != InvariantViolationPersisted {
		t.Errorf("diagnostics = %+v", r.diagnostics)
	}
}

func TestWindow(t *testing.T) {
	doc, ol := manualFixture(t)
	opts := DefaultOptions()
	opts.WindowPad = 2
	r := newRun(opts, doc.Lines, ol, nil, nil)
	r.assign(0, candidate.Candidate{Pos: 3}, StrategyNumeric)
	r.assign(3, candidate.Candidate{Pos: 10}, StrategyNumeric)

	tests := []struct {
		name string
		node int
		want candidate.Window
	}{
		{"first child starts pad lines before parent", 1, candidate.Window{Lo: 1, Hi: 10}},
		{"unresolved parent starts after last anchor", 7, candidate.Window{Lo: 11, Hi: 20}},
		{"root ends at next anchor", 0, candidate.Window{Lo: 0, Hi: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.window(tt.node); got != tt.want {
				t.Errorf("window(%d) = %+v, want %+v", tt.node, got, tt.want)
			}
		})
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&document.InputShapeError{Field: "lines", Reason: "x"}, "input_shape"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "deadline_exceeded"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
