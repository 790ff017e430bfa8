package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder appends metrics to a JSON lines file. It is safe for concurrent use.
type Recorder struct {
	path string
	mu   sync.Mutex
}

// NewRecorder creates a recorder writing to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Path returns the file the recorder appends to.
func (r *Recorder) Path() string {
	return r.path
}

// RecordOpts provides attribution for a metric recording.
type RecordOpts struct {
	RunID      string
	DocumentID string
}

// Record appends a single metric and returns its ID.
func (r *Recorder) Record(ctx context.Context, m Metric) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metric: %w", err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create metrics directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open metrics file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write metric: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close metrics file: %w", err)
	}
	return m.ID, nil
}

// RecordError records a failed run as a metric.
func (r *Recorder) RecordError(ctx context.Context, opts RecordOpts, errorType string, duration time.Duration) (string, error) {
	m := Metric{
		// Attribution
		RunID:      opts.RunID,
		DocumentID: opts.DocumentID,

		// Timing
		TotalSeconds: duration.Seconds(),

		// Status
		Success:   false,
		ErrorType: errorType,

		// Metadata
		CreatedAt: time.Now(),
	}

	return r.Record(ctx, m)
}
