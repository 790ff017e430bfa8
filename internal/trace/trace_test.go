package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	tr.Emit(StartRun, "doc", "x")
	if tr.RunID() != "" || tr.Events() != nil || tr.Count(StartRun) != 0 {
		t.Error("nil tracer should record nothing")
	}
	if a, b, err := tr.Flush(t.TempDir()); a != "" || b != "" || err != nil {
		t.Errorf("Flush() = %q, %q, %v", a, b, err)
	}
}

func TestEmit(t *testing.T) {
	tr := New("doc-1")
	tr.Emit(StartRun, "lines", 10)
	tr.Emit(AnchorResolved, "node", 0, "line", 4)
	tr.Emit(AnchorResolved, "node", 1, "line", 9)

	events := tr.Events()
	if len(events) != 3 {
		t.Fatalf("len(Events()) = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i || ev.RunID != tr.RunID() {
			t.Errorf("event %d = %+v", i, ev)
		}
	}
	if got := events[1].Fields; !reflect.DeepEqual(got, map[string]any{"node": 0, "line": 4}) {
		t.Errorf("Fields = %v", got)
	}
	if tr.Count(AnchorResolved) != 2 {
		t.Errorf("Count() = %d, want 2", tr.Count(AnchorResolved))
	}

	sum := tr.Summary()
	if sum.Events != 3 || sum.DocumentID != "doc-1" || sum.Counts[StartRun] != 1 {
		t.Errorf("Summary() = %+v", sum)
	}
	if got := Types(sum.Counts); !reflect.DeepEqual(got, []string{AnchorResolved, StartRun}) {
		t.Errorf("Types() = %v", got)
	}
}

func TestPairs(t *testing.T) {
	tests := []struct {
		name string
		kv   []any
		want map[string]any
	}{
		{"empty", nil, nil},
		{"pairs", []any{"a", 1, "b", "x"}, map[string]any{"a": 1, "b": "x"}},
		{"dangling key", []any{"a", 1, "b"}, map[string]any{"a": 1, "!BADKEY": "b"}},
		{"non-string key", []any{3, "a", 1}, map[string]any{"!BADKEY": 3, "a": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pairs(tt.kv); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pairs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlush(t *testing.T) {
	tr := New("doc-2")
	tr.Emit(StartRun)
	tr.Emit(DedupeDrop, "node", 3, "line", 12)
	tr.Emit(EndRun, "resolved", 2)

	dir := filepath.Join(t.TempDir(), "traces")
	eventsPath, summaryPath, err := tr.Flush(dir)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if filepath.Base(eventsPath) != tr.RunID()+".jsonl" {
		t.Errorf("events path = %s", eventsPath)
	}

	f, err := os.Open(eventsPath)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		types = append(types, ev.Type)
	}
	if !reflect.DeepEqual(types, []string{StartRun, DedupeDrop, EndRun}) {
		t.Errorf("types = %v", types)
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.RunID != tr.RunID() || sum.Events != 3 || sum.Counts[DedupeDrop] != 1 {
		t.Errorf("summary = %+v", sum)
	}
}
