package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// maxLineBytes bounds a single metric record.
const maxLineBytes = 1 << 20

// Query provides queries over a metrics file.
type Query struct {
	path string
}

// NewQuery creates a new metrics query helper for the file at path.
func NewQuery(path string) *Query {
	return &Query{path: path}
}

// Filter specifies query filters.
type Filter struct {
	RunID      string
	DocumentID string
	Embedder   string
	After      time.Time
	Before     time.Time
	Success    *bool // nil = any, true = success only, false = errors only
	Semantic   *bool
}

// Match reports whether m passes the filter.
func (f Filter) Match(m Metric) bool {
	if f.RunID != "" && m.RunID != f.RunID {
		return false
	}
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	if f.Embedder != "" && m.Embedder != f.Embedder {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Success != nil && m.Success != *f.Success {
		return false
	}
	if f.Semantic != nil && m.Semantic != *f.Semantic {
		return false
	}
	return true
}

// List returns metrics matching the filter in file order. A missing file
// yields no metrics. limit <= 0 means no limit.
func (q *Query) List(ctx context.Context, f Filter, limit int) ([]Metric, error) {
	file, err := os.Open(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	defer file.Close()

	var metrics []Metric
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && len(metrics) >= limit {
			break
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var m Metric
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to parse metric on line %d: %w", lineNo, err)
		}
		if f.Match(m) {
			metrics = append(metrics, m)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	return metrics, nil
}
