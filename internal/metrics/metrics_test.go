package metrics

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metrics", "runs.jsonl")
	r := NewRecorder(path)

	id, err := r.Record(ctx, Metric{RunID: "r1", DocumentID: "doc-a", Headings: 4, Resolved: 3, Success: true, TotalSeconds: 1})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if id == "" {
		t.Error("Record() returned an empty id")
	}
	if _, err := r.Record(ctx, Metric{RunID: "r2", DocumentID: "doc-b", Headings: 2, Resolved: 2, Success: true, TotalSeconds: 3}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := r.RecordError(ctx, RecordOpts{RunID: "r3", DocumentID: "doc-a"}, "input_shape", 2*time.Second); err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}

	q := NewQuery(path)
	all, err := q.List(ctx, Filter{}, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d metrics, want 3", len(all))
	}
	if all[0].ID != id || all[0].CreatedAt.IsZero() {
		t.Errorf("first metric = %+v", all[0])
	}

	failed := false
	errs, err := q.List(ctx, Filter{Success: &failed}, 0)
	if err != nil || len(errs) != 1 || errs[0].ErrorType != "input_shape" {
		t.Errorf("List(errors) = %+v, %v", errs, err)
	}

	docA, err := q.List(ctx, Filter{DocumentID: "doc-a"}, 1)
	if err != nil || len(docA) != 1 || docA[0].RunID != "r1" {
		t.Errorf("List(doc-a, limit 1) = %+v, %v", docA, err)
	}
}

func TestListMissingFile(t *testing.T) {
	q := NewQuery(filepath.Join(t.TempDir(), "none.jsonl"))
	got, err := q.List(context.Background(), Filter{}, 0)
	if err != nil || got != nil {
		t.Errorf("List() = %v, %v, want nil, nil", got, err)
	}
}

func TestListCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	if err := os.WriteFile(path, []byte("{\"success\":true}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewQuery(path).List(context.Background(), Filter{}, 0); err == nil {
		t.Error("List() accepted a corrupt line")
	}
}

func TestFilterMatch(t *testing.T) {
	now := time.Now()
	yes := true
	m := Metric{RunID: "r", DocumentID: "d", Embedder: "hash", Semantic: true, Success: true, CreatedAt: now}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"document", Filter{DocumentID: "d"}, true},
		{"other document", Filter{DocumentID: "x"}, false},
		{"after", Filter{After: now.Add(-time.Minute)}, true},
		{"before", Filter{Before: now.Add(-time.Minute)}, false},
		{"semantic", Filter{Semantic: &yes}, true},
		{"embedder", Filter{Embedder: "openai"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(m); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Metric{
		{Headings: 10, Resolved: 8, Unresolvable: 2, Corrections: 1, TotalSeconds: 2, Success: true},
		{Headings: 10, Resolved: 10, TotalSeconds: 4, Success: true},
		{TotalSeconds: 0, Success: false},
	})
	if s.Count != 3 || s.SuccessCount != 2 || s.ErrorCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if math.Abs(s.ResolutionRate-0.9) > 1e-9 {
		t.Errorf("ResolutionRate = %v, want 0.9", s.ResolutionRate)
	}
	if math.Abs(s.AvgTimeSeconds-2) > 1e-9 {
		t.Errorf("AvgTimeSeconds = %v, want 2", s.AvgTimeSeconds)
	}
}

func TestDetailedStats(t *testing.T) {
	stats := detailedStats([]Metric{
		{Headings: 4, Resolved: 4, TotalSeconds: 1, Success: true, CacheHits: 3, CacheMisses: 1},
		{Headings: 4, Resolved: 2, TotalSeconds: 3, Success: true},
		{Headings: 4, Resolved: 3, TotalSeconds: 2, Success: true},
	})
	if stats.LatencyMin != 1 || stats.LatencyMax != 3 || stats.LatencyP50 != 2 {
		t.Errorf("latency = %+v", stats)
	}
	if stats.ResolutionMin != 0.5 || stats.ResolutionP50 != 0.75 {
		t.Errorf("resolution = %+v", stats)
	}
	if stats.CacheHitRate != 0.75 {
		t.Errorf("CacheHitRate = %v, want 0.75", stats.CacheHitRate)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		values []float64
		p      float64
		want   float64
	}{
		{nil, 50, 0},
		{[]float64{7}, 99, 7},
		{[]float64{1, 2, 3, 4}, 50, 2.5},
		{[]float64{1, 2, 3, 4}, 100, 4},
	}
	for _, tt := range tests {
		if got := percentile(tt.values, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v, %v) = %v, want %v", tt.values, tt.p, got, tt.want)
		}
	}
}

func TestBreakdowns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	r := NewRecorder(path)
	for _, m := range []Metric{
		{DocumentID: "a", Headings: 2, Resolved: 1, Success: true, Strategies: map[string]int{"numeric": 1}},
		{DocumentID: "a", Headings: 2, Resolved: 2, Success: true, Strategies: map[string]int{"numeric": 1, "text": 1}},
		{DocumentID: "b", Success: false, ErrorType: "canceled"},
	} {
		if _, err := r.Record(ctx, m); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	q := NewQuery(path)

	strategies, err := q.StrategyBreakdown(ctx, Filter{})
	if err != nil || strategies["numeric"] != 2 || strategies["text"] != 1 {
		t.Errorf("StrategyBreakdown() = %v, %v", strategies, err)
	}
	docs, err := q.DocumentResolution(ctx, Filter{})
	if err != nil || len(docs) != 1 || docs["a"] != 1 {
		t.Errorf("DocumentResolution() = %v, %v", docs, err)
	}
	errs, err := q.ErrorBreakdown(ctx, Filter{})
	if err != nil || errs["canceled"] != 1 {
		t.Errorf("ErrorBreakdown() = %v, %v", errs, err)
	}
}
