package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/headloc/internal/home"
	"github.com/jackzampolin/headloc/internal/metrics"
	"github.com/jackzampolin/headloc/internal/report"
)

var (
	metricsDocument string
	metricsSince    time.Duration
	metricsLimit    int
	metricsFailed   bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Inspect recorded runs",
}

// metricsSummary is the structured output of 'metrics summary'.
type metricsSummary struct {
	Summary    *metrics.Summary       `json:"summary" yaml:"summary"`
	Stats      *metrics.DetailedStats `json:"stats" yaml:"stats"`
	Strategies map[string]int         `json:"strategies,omitempty" yaml:"strategies,omitempty"`
	Errors     map[string]int         `json:"errors,omitempty" yaml:"errors,omitempty"`
	Documents  map[string]float64     `json:"documents,omitempty" yaml:"documents,omitempty"`
}

var metricsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate recorded runs",
	Long: `Summary aggregates the runs recorded in the home directory.

Examples:
  headloc metrics summary
  headloc metrics summary --since 24h
  headloc metrics summary --document manual -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := metricsQuery()
		if err != nil {
			return err
		}
		f := metricsFilter()

		out := metricsSummary{}
		if out.Summary, err = q.GetSummary(ctx, f); err != nil {
			return err
		}
		if out.Stats, err = q.GetDetailedStats(ctx, f); err != nil {
			return err
		}
		if out.Strategies, err = q.StrategyBreakdown(ctx, f); err != nil {
			return err
		}
		if out.Errors, err = q.ErrorBreakdown(ctx, f); err != nil {
			return err
		}
		if out.Documents, err = q.DocumentResolution(ctx, f); err != nil {
			return err
		}
		return emit(out, func(w io.Writer) {
			report.Metrics(w, out.Summary, out.Stats, out.Strategies)
			kinds := make([]string, 0, len(out.Errors))
			for kind := range out.Errors {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				fmt.Fprintf(w, "errors %s: %d\n", kind, out.Errors[kind])
			}
		})
	},
}

var metricsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := metricsQuery()
		if err != nil {
			return err
		}
		runs, err := q.List(cmd.Context(), metricsFilter(), metricsLimit)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, len(runs))
		for i := range runs {
			rows[i] = runs[i].ToMap()
		}
		return emit(rows, func(w io.Writer) {
			for _, m := range runs {
				status := "ok"
				if !m.Success {
					status = m.ErrorType
				}
				fmt.Fprintf(w, "%s  %-24s %3d/%-3d %-18s %.3fs\n",
					m.CreatedAt.Format(time.RFC3339), m.DocumentID, m.Resolved, m.Headings, status, m.TotalSeconds)
			}
		})
	},
}

func metricsQuery() (*metrics.Query, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	return metrics.NewQuery(h.MetricsPath()), nil
}

func metricsFilter() metrics.Filter {
	f := metrics.Filter{DocumentID: metricsDocument}
	if metricsSince > 0 {
		f.After = time.Now().Add(-metricsSince)
	}
	if metricsFailed {
		failed := false
		f.Success = &failed
	}
	return f
}

func init() {
	metricsCmd.PersistentFlags().StringVar(&metricsDocument, "document", "", "only runs of this document")
	metricsCmd.PersistentFlags().DurationVar(&metricsSince, "since", 0, "only runs newer than this (e.g. 24h)")
	metricsListCmd.Flags().IntVar(&metricsLimit, "limit", 50, "maximum runs to list (0 for all)")
	metricsListCmd.Flags().BoolVar(&metricsFailed, "failed", false, "only failed runs")

	metricsCmd.AddCommand(metricsSummaryCmd)
	metricsCmd.AddCommand(metricsListCmd)
	rootCmd.AddCommand(metricsCmd)
}
