package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/headloc/internal/api"
	"github.com/jackzampolin/headloc/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "headloc",
	Short: "Locate outline headings in extracted document text",
	Long: `Headloc finds the line where each heading of a document outline begins
and splits the document into one section per heading.

It copes with:
  - Table-of-contents pages and running headers/footers echoing headings
  - OCR confusables such as "SECTlON" or "2.l"
  - Duplicate numbering and headings missing from the text
  - Optional embedding similarity (OpenAI or an offline hash embedder)`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.headloc/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "headloc home directory (default: ~/.headloc)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
