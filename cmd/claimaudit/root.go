package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/cli"
)

// defaultConfigFile is read when present and --config is not given.
const defaultConfigFile = "claimaudit.yaml"

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "claimaudit",
	Short: "Claimaudit - rule-based health-insurance claim auditing",
	Long: `Claimaudit audits health-insurance claim and pre-authorization line items
against a configurable catalog of business rules and flags records that should
be denied, escalated or manually reviewed.

Every audited batch gets three extra columns:
  - Filter Applied(Exclusions not Applied): every rule that matched
  - Filter Applied: matches that survive global exclusions
  - Filter Applied(Manual Verification Required): matches that need review

Runs and their findings are recorded in a store for later inspection.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
