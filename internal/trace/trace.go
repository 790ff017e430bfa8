// Package trace records the decisions of a locate run as structured events.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	StartRun              = "start_run"
	EndRun                = "end_run"
	CandidateFound        = "candidate_found"
	CandidateScored       = "candidate_scored"
	AnchorResolved        = "anchor_resolved"
	AnchorUnresolvable    = "anchor_unresolvable"
	FallbackTriggered     = "fallback_triggered"
	MonotonicViolation    = "monotonic_violation"
	ReanchorParent        = "reanchor_parent"
	DedupeDrop            = "dedupe_drop"
	InvariantsPassSummary = "invariants_pass_summary"
)

// Event is one trace record.
type Event struct {
	Seq    int            `json:"seq"`
	Time   time.Time      `json:"ts"`
	RunID  string         `json:"run_id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"data,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	RunID      string         `json:"run_id"`
	DocumentID string         `json:"document_id,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Events     int            `json:"events"`
	Counts     map[string]int `json:"counts"`
}

// Tracer collects events in memory. A nil *Tracer discards everything, so
// callers never need to check for one.
type Tracer struct {
	mu     sync.Mutex
	runID  string
	docID  string
	start  time.Time
	events []Event
	counts map[string]int
	logger *slog.Logger
}

// New creates a Tracer with a fresh run id.
func New(docID string) *Tracer {
	return &Tracer{
		runID:  uuid.New().String(),
		docID:  docID,
		start:  time.Now(),
		counts: make(map[string]int),
	}
}

// WithLogger mirrors every event to logger at debug level.
func (t *Tracer) WithLogger(logger *slog.Logger) *Tracer {
	if t != nil {
		t.logger = logger
	}
	return t
}

// RunID returns the run identifier, or "" for a nil Tracer.
func (t *Tracer) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// Emit records an event. kv is a list of alternating keys and values.
func (t *Tracer) Emit(typ string, kv ...any) {
	if t == nil {
		return
	}
	fields := pairs(kv)

	t.mu.Lock()
	t.events = append(t.events, Event{
		Seq:    len(t.events),
		Time:   time.Now(),
		RunID:  t.runID,
		Type:   typ,
		Fields: fields,
	})
	t.counts[typ]++
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("trace", append([]any{"type", typ, "run_id", t.runID}, kv...)...)
	}
}

// Events returns a copy of the recorded events.
func (t *Tracer) Events() []Event {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Count returns how many events of typ were emitted.
func (t *Tracer) Count(typ string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[typ]
}

// Summary returns per-type counts for the run so far.
func (t *Tracer) Summary() Summary {
	if t == nil {
		return Summary{Counts: map[string]int{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		counts[k] = v
	}
	return Summary{
		RunID:      t.runID,
		DocumentID: t.docID,
		StartedAt:  t.start,
		Duration:   time.Since(t.start),
		Events:     len(t.events),
		Counts:     counts,
	}
}

// Flush writes <run_id>.jsonl and <run_id>.summary.json into dir.
func (t *Tracer) Flush(dir string) (eventsPath, summaryPath string, err error) {
	if t == nil {
		return "", "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create trace directory: %w", err)
	}

	eventsPath = filepath.Join(dir, t.runID+".jsonl")
	if err := writeJSONL(eventsPath, t.Events()); err != nil {
		return "", "", err
	}

	summaryPath = filepath.Join(dir, t.runID+".summary.json")
	data, err := json.MarshalIndent(t.Summary(), "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal trace summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write trace summary: %w", err)
	}
	return eventsPath, summaryPath, nil
}

func writeJSONL(path string, events []Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to write trace event %d: %w", ev.Seq, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace file: %w", err)
	}
	return f.Close()
}

// pairs turns alternating key/value arguments into a map. A key without a
// value is stored under "!BADKEY".
func pairs(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	out := make(map[string]any, (len(kv)+1)/2)
	for i := 0; i < len(kv); {
		key, ok := kv[i].(string)
		if !ok || i+1 >= len(kv) {
			out["!BADKEY"] = kv[i]
			i++
			continue
		}
		out[key] = kv[i+1]
		i += 2
	}
	return out
}

// Types returns the sorted event types present in counts.
func Types(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
