package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the headloc home directory.
	DefaultDirName = ".headloc"

	// TracesDirName is the subdirectory for trace event files.
	TracesDirName = "traces"

	// MetricsDirName is the subdirectory for run metrics.
	MetricsDirName = "metrics"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// MetricsFileName is the JSON lines file runs are appended to.
	MetricsFileName = "runs.jsonl"
)

// Dir represents the headloc home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.headloc).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// TracesPath returns the directory trace files are flushed to.
func (d *Dir) TracesPath() string {
	return filepath.Join(d.path, TracesDirName)
}

// DocumentTracesPath returns the trace directory of one document.
// Documents without an ID share the "unnamed" directory.
func (d *Dir) DocumentTracesPath(docID string) string {
	if docID == "" {
		docID = "unnamed"
	}
	return filepath.Join(d.TracesPath(), filepath.Base(docID))
}

// MetricsPath returns the path of the run metrics file.
func (d *Dir) MetricsPath() string {
	return filepath.Join(d.path, MetricsDirName, MetricsFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create traces directory (this also creates the parent)
	if err := os.MkdirAll(d.TracesPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create traces directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(d.MetricsPath()), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
