// Package metrics records one entry per locate run and aggregates them.
package metrics

import "time"

// Metric represents a single locate run.
// Metrics are append-only records stored as JSON lines under the home dir.
type Metric struct {
	ID string `json:"id,omitempty"`

	// Attribution (for filtering/aggregation)
	RunID      string `json:"run_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`

	// Input shape
	Lines    int `json:"lines,omitempty"`
	Pages    int `json:"pages,omitempty"`
	Headings int `json:"headings,omitempty"`

	// Outcome
	Resolved     int            `json:"resolved,omitempty"`
	Unresolvable int            `json:"unresolvable,omitempty"`
	Corrections  int            `json:"corrections,omitempty"`
	Passes       int            `json:"passes,omitempty"`
	Strategies   map[string]int `json:"strategies,omitempty"` // e.g., "numeric": 12

	// Noise
	TOCLines     int `json:"toc_lines,omitempty"`
	RunningLines int `json:"running_lines,omitempty"`

	// Semantic scoring
	Semantic    bool   `json:"semantic,omitempty"`
	Embedder    string `json:"embedder,omitempty"`
	CacheHits   int    `json:"cache_hits,omitempty"`
	CacheMisses int    `json:"cache_misses,omitempty"`

	// Timing
	TotalSeconds float64 `json:"total_seconds,omitempty"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ResolutionRate returns the resolved share of headings, 1 for an empty outline.
func (m *Metric) ResolutionRate() float64 {
	if m.Headings == 0 {
		return 1
	}
	return float64(m.Resolved) / float64(m.Headings)
}

// ToMap converts the metric to a flat map for display.
func (m *Metric) ToMap() map[string]any {
	data := map[string]any{
		"success":    m.Success,
		"created_at": m.CreatedAt.Format(time.RFC3339),
	}

	// Attribution
	if m.ID != "" {
		data["id"] = m.ID
	}
	if m.RunID != "" {
		data["run_id"] = m.RunID
	}
	if m.DocumentID != "" {
		data["document_id"] = m.DocumentID
	}

	// Input shape
	if m.Lines > 0 {
		data["lines"] = m.Lines
	}
	if m.Pages > 0 {
		data["pages"] = m.Pages
	}
	if m.Headings > 0 {
		data["headings"] = m.Headings
	}

	// Outcome
	if m.Resolved > 0 {
		data["resolved"] = m.Resolved
	}
	if m.Unresolvable > 0 {
		data["unresolvable"] = m.Unresolvable
	}
	if m.Corrections > 0 {
		data["corrections"] = m.Corrections
	}
	if m.Passes > 0 {
		data["passes"] = m.Passes
	}
	if len(m.Strategies) > 0 {
		data["strategies"] = m.Strategies
	}

	// Noise
	if m.TOCLines > 0 {
		data["toc_lines"] = m.TOCLines
	}
	if m.RunningLines > 0 {
		data["running_lines"] = m.RunningLines
	}

	// Semantic
	if m.Semantic {
		data["semantic"] = true
	}
	if m.Embedder != "" {
		data["embedder"] = m.Embedder
	}
	if m.CacheHits > 0 {
		data["cache_hits"] = m.CacheHits
	}
	if m.CacheMisses > 0 {
		data["cache_misses"] = m.CacheMisses
	}

	// Timing
	if m.TotalSeconds > 0 {
		data["total_seconds"] = m.TotalSeconds
	}

	// Status
	if m.ErrorType != "" {
		data["error_type"] = m.ErrorType
	}

	return data
}
