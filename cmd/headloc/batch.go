package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/locator"
	"github.com/jackzampolin/headloc/internal/report"
)

// Manifest lists the documents of a batch. Relative paths are resolved
// against the manifest's directory.
type Manifest struct {
	Documents []ManifestEntry `yaml:"documents"`
}

// ManifestEntry is one document of a batch.
type ManifestEntry struct {
	ID      string `yaml:"id,omitempty"`
	Lines   string `yaml:"lines"`
	Outline string `yaml:"outline,omitempty"`
}

// batchResult is the structured output of one batch item.
type batchResult struct {
	ID     string          `json:"id" yaml:"id"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
	Result *locator.Result `json:"result,omitempty" yaml:"result,omitempty"`
}

var (
	batchWorkers  int
	batchFailFast bool
	batchFlags    runFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Locate headings in many documents in parallel",
	Long: `Batch reads a YAML manifest and locates every document it lists.

Manifest format:
  documents:
    - id: manual
      lines: manual.json
      outline: manual.outline.json
    - lines: guide.md

A document that fails is reported and the others still run, unless
--fail-fast is set and a document has an invalid shape.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest(args[0])
		if err != nil {
			return err
		}

		s, err := newSession(cmd.Context(), batchFlags)
		if err != nil {
			return err
		}
		defer s.Close()

		names := make([]string, len(m.Documents))
		reqs := make([]locator.Request, len(m.Documents))
		loadErrs := make([]error, len(m.Documents))
		for i, e := range m.Documents {
			names[i] = e.ID
			if names[i] == "" {
				names[i] = e.Lines
			}
			doc, ol, err := loadEntry(e)
			if err != nil {
				if batchFailFast {
					return err
				}
				loadErrs[i] = err
				continue
			}
			reqs[i] = locator.Request{Document: doc, Outline: ol}
		}

		opts := locatorOptions(s.cfg)
		if batchFlags.semantic {
			opts.Candidate.Semantic = true
		}
		workers := batchWorkers
		if workers <= 0 {
			workers = s.cfg.Defaults.Workers
		}

		items, batchErr := locator.New(opts).LocateBatch(s.ctx, reqs, workers, batchFailFast)
		for i, err := range loadErrs {
			if err != nil {
				items[i].Result, items[i].Err = nil, err
			}
		}

		out := make([]batchResult, len(items))
		for i, it := range items {
			out[i] = batchResult{ID: names[i], Result: it.Result}
			if it.Err != nil {
				out[i].Error = it.Err.Error()
			}
		}
		if err := emit(out, func(w io.Writer) { report.Batch(w, items, names) }); err != nil {
			return err
		}
		return batchErr
	},
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Documents) == 0 {
		return nil, fmt.Errorf("manifest %s lists no documents", path)
	}

	base := filepath.Dir(path)
	for i := range m.Documents {
		e := &m.Documents[i]
		if e.Lines == "" {
			return nil, fmt.Errorf("manifest documents[%d]: lines is required", i)
		}
		e.Lines = resolvePath(base, e.Lines)
		if e.Outline != "" {
			e.Outline = resolvePath(base, e.Outline)
		}
	}
	return &m, nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func loadEntry(e ManifestEntry) (*document.Document, *document.Outline, error) {
	outline := e.Outline
	if outline == "" {
		if !isMarkdown(e.Lines) {
			return nil, nil, fmt.Errorf("%s: outline is required unless lines is Markdown", e.Lines)
		}
		outline = e.Lines
	}
	doc, err := loadDocument(e.Lines, e.ID)
	if err != nil {
		return nil, nil, err
	}
	ol, err := loadOutline(outline)
	if err != nil {
		return nil, nil, err
	}
	return doc, ol, nil
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "documents located in parallel (default from config)")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "stop at the first document with an invalid shape")
	batchCmd.Flags().BoolVar(&batchFlags.semantic, "semantic", false, "enable embedding similarity")
	batchCmd.Flags().BoolVar(&batchFlags.trace, "trace", false, "write trace events under the home directory")
	batchCmd.Flags().BoolVar(&batchFlags.noRecord, "no-metrics", false, "do not record run metrics")

	rootCmd.AddCommand(batchCmd)
}
