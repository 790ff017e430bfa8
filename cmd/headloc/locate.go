package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/headloc/internal/config"
	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/locator"
	"github.com/jackzampolin/headloc/internal/report"
	"github.com/jackzampolin/headloc/internal/svcctx"
)

var (
	locateLines   string
	locateOutline string
	locateID      string
	locateWatch   bool
	locateFlags   runFlags
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Locate outline headings in one document",
	Long: `Locate finds the line where each outline heading begins and prints
the anchors, sections and diagnostics.

Lines are a JSON document ({"id", "lines": [...]}, or a bare array) or a
Markdown file. The outline is JSON ({"headings": [...]}, or a bare array)
or Markdown whose headings form the outline. When --outline is omitted the
outline is taken from the --lines Markdown file.

Examples:
  headloc locate --lines manual.json --outline outline.json
  headloc locate --lines manual.md
  headloc locate --lines manual.json --outline outline.json --semantic -o json
  headloc locate --lines manual.json --outline outline.json --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, ol, err := locateInputs()
		if err != nil {
			return err
		}

		s, err := newSession(cmd.Context(), locateFlags)
		if err != nil {
			return err
		}
		defer s.Close()
		if s.services.TraceDir != "" {
			s.services.TraceDir = s.services.Home.DocumentTracesPath(doc.ID)
		}

		if !locateWatch {
			return runLocate(s.ctx, s.cfg, doc, ol)
		}
		return watchLocate(s, doc, ol)
	},
}

func locateInputs() (*document.Document, *document.Outline, error) {
	if locateLines == "" {
		return nil, nil, fmt.Errorf("--lines is required")
	}
	outlinePath := locateOutline
	if outlinePath == "" {
		if !isMarkdown(locateLines) {
			return nil, nil, fmt.Errorf("--outline is required unless --lines is Markdown")
		}
		outlinePath = locateLines
	}

	doc, err := loadDocument(locateLines, locateID)
	if err != nil {
		return nil, nil, err
	}
	ol, err := loadOutline(outlinePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, ol, nil
}

func runLocate(ctx context.Context, cfg *config.Config, doc *document.Document, ol *document.Outline) error {
	opts := locatorOptions(cfg)
	if locateFlags.semantic {
		opts.Candidate.Semantic = true
	}

	res, err := locator.New(opts).Locate(ctx, locator.Request{Document: doc, Outline: ol})
	if err != nil {
		return err
	}
	return emit(res, func(w io.Writer) { report.Result(w, res) })
}

// watchLocate reruns the document whenever the config file changes, until
// the command is interrupted.
func watchLocate(s *session, doc *document.Document, ol *document.Outline) error {
	mgr := s.services.Config
	if mgr.ConfigFile() == "" {
		return fmt.Errorf("--watch needs a config file; run 'headloc config init' or pass --config")
	}
	changes := make(chan *config.Config, 1)
	mgr.OnChange(func(cfg *config.Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	mgr.WatchConfig()

	logger := svcctx.LoggerFrom(s.ctx)
	cfg := s.cfg
	for {
		if err := runLocate(s.ctx, cfg, doc, ol); err != nil {
			return err
		}
		logger.Info("watching config for changes", "file", mgr.ConfigFile())
		select {
		case <-s.ctx.Done():
			return nil
		case cfg = <-changes:
			fmt.Fprintln(os.Stderr)
		}
	}
}

func init() {
	locateCmd.Flags().StringVar(&locateLines, "lines", "", "lines file (.json or .md)")
	locateCmd.Flags().StringVar(&locateOutline, "outline", "", "outline file (.json or .md)")
	locateCmd.Flags().StringVar(&locateID, "id", "", "document ID (default: from the file)")
	locateCmd.Flags().BoolVar(&locateFlags.semantic, "semantic", false, "enable embedding similarity")
	locateCmd.Flags().BoolVar(&locateFlags.trace, "trace", false, "write trace events under the home directory")
	locateCmd.Flags().BoolVar(&locateFlags.noRecord, "no-metrics", false, "do not record run metrics")
	locateCmd.Flags().BoolVar(&locateWatch, "watch", false, "rerun when the config file changes")

	rootCmd.AddCommand(locateCmd)
}
