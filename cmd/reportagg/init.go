package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/reportagg/internal/config"
)

var errConfigExists = errors.New("config file already exists")

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	return initConfig(optionsFromFlags(cmd), force, cmd.OutOrStdout())
}

// initConfig writes the default project configuration next to the build
// file, with a sample unit-test aggregate alongside the default one.
func initConfig(opts projectOptions, force bool, out io.Writer) error {
	path := opts.ConfigFile
	if path == "" {
		absFile, err := filepath.Abs(opts.BuildFile)
		if err != nil {
			return fmt.Errorf("resolving build file: %w", err)
		}
		path = filepath.Join(filepath.Dir(absFile), config.ProjectPath)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", errConfigExists, path)
	}

	cfg := config.DefaultConfig()
	cfg.Aggregators["unitTest"] = config.AggregatorConfig{Title: "Unit tests", TestType: "unit-test"}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
