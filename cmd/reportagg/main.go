package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reportagg",
		Short: "Run build tasks and aggregate their reports",
		Long: `reportagg runs the tasks of a YAML build file in dependency order and
collects the reports produced by test and analysis tasks into one
aggregate page per configured report, skipping the aggregation when
nothing relevant changed since the last build.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("file", "f", "reportagg.yaml", "Build file")
	rootCmd.PersistentFlags().String("config", "", "Project config file (default .reportagg/config.json next to the build file)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override: debug|info|warn|error")

	runCmd := &cobra.Command{
		Use:   "run [tasks...]",
		Short: "Run the requested tasks (default: the build file's default tasks)",
		RunE:  runRun,
	}
	runCmd.Flags().Bool("continue", false, "Keep running tasks not affected by a failure")
	runCmd.Flags().StringArray("report", nil, "Switch a report on or off: <task>/<report>=on|off (repeatable)")

	outcomesCmd := &cobra.Command{
		Use:   "outcomes <build-id>",
		Short: "Show the recorded task outcomes of a build",
		Args:  cobra.ExactArgs(1),
		RunE:  runOutcomes,
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete aggregate outputs and their stored state",
		RunE:  runClean,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter project config",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	rootCmd.AddCommand(initCmd, runCmd, outcomesCmd, cleanCmd)
	return rootCmd
}
