package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/headloc/internal/api"
	"github.com/jackzampolin/headloc/internal/config"
	"github.com/jackzampolin/headloc/internal/home"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = h.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the configuration after merging defaults, the config file
and HEADLOC_* environment variables (e.g. HEADLOC_LOCATOR_FUZZY_THRESHOLD).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		if f := mgr.ConfigFile(); f != "" && !api.IsStructuredOutput() {
			fmt.Fprintf(os.Stderr, "# %s\n", f)
		}
		return api.Output(mgr.Get())
	},
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults [key]",
	Short: "List configuration keys with their defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := config.DefaultEntries()
		if len(args) == 1 {
			e := config.GetDefault(args[0])
			if e == nil {
				return fmt.Errorf("%w: %s", config.ErrNoDefault, args[0])
			}
			entries = []config.Entry{*e}
		}
		return emit(entries, func(w io.Writer) {
			for _, e := range entries {
				fmt.Fprintf(w, "%-40s %-24v %s\n", e.Key, e.Value, e.Description)
			}
		})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDefaultsCmd)
	rootCmd.AddCommand(configCmd)
}
