package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/reportagg/internal/aggregate"
	"github.com/aristath/reportagg/internal/buildfile"
	"github.com/aristath/reportagg/internal/config"
	"github.com/aristath/reportagg/internal/events"
	"github.com/aristath/reportagg/internal/logging"
	"github.com/aristath/reportagg/internal/persistence"
	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// projectOptions selects the files a command works on.
type projectOptions struct {
	BuildFile  string
	ConfigFile string // Empty means <project root>/.reportagg/config.json
	GlobalFile string
	LogLevel   string // Overrides the configured level when set
}

func optionsFromFlags(cmd *cobra.Command) projectOptions {
	file, _ := cmd.Flags().GetString("file")
	cfgFile, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	return projectOptions{
		BuildFile:  file,
		ConfigFile: cfgFile,
		GlobalFile: config.GlobalPath(),
		LogLevel:   level,
	}
}

// project is the configuration shared by all commands.
type project struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger
}

func loadProject(opts projectOptions) (*project, error) {
	absFile, err := filepath.Abs(opts.BuildFile)
	if err != nil {
		return nil, fmt.Errorf("resolving build file: %w", err)
	}
	root := filepath.Dir(absFile)

	cfgFile := opts.ConfigFile
	if cfgFile == "" {
		cfgFile = filepath.Join(root, config.ProjectPath)
	}
	cfg, err := config.Load(opts.GlobalFile, cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	return &project{
		root:   root,
		cfg:    cfg,
		logger: logging.New(level, cfg.LogFormat, os.Stderr),
	}, nil
}

func (p *project) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.root, rel)
}

func (p *project) openStore(ctx context.Context) (*persistence.SQLiteStore, error) {
	return persistence.NewSQLiteStore(ctx, p.path(p.cfg.StatePath))
}

// aggregatorNames returns configured report names in a stable order.
func (p *project) aggregatorNames() []string {
	names := make([]string, 0, len(p.cfg.Aggregators))
	for name := range p.cfg.Aggregators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *project) newAggregator(name string, registry *reporting.Registry, store aggregate.StateStore, bus events.Publisher) (*aggregate.Aggregator, error) {
	ac := p.cfg.Aggregators[name]
	return aggregate.New(aggregate.Options{
		Name:      name,
		Title:     ac.Title,
		TestType:  ac.TestType,
		DependsOn: ac.DependsOn,
		ReportDir: p.path(p.cfg.ReportDir),
		Registry:  registry,
		Store:     store,
		Events:    bus,
		Logger:    p.logger,
	})
}

// assembled is a configured, not yet finalized build.
type assembled struct {
	def         *buildfile.Definition
	dag         *scheduler.DAG
	registry    *reporting.Registry
	aggregators []*aggregate.Aggregator
}

// assemble loads the build file and installs its tasks and every configured aggregator.
func (p *project) assemble(buildFile string, store aggregate.StateStore, runner buildfile.CommandRunner, bus events.Publisher, reportSwitches []string) (*assembled, error) {
	def, err := buildfile.Load(buildFile)
	if err != nil {
		return nil, err
	}

	a := &assembled{def: def, dag: scheduler.NewDAG(), registry: reporting.NewRegistry()}
	toggles, err := def.Install(a.dag, a.registry, runner)
	if err != nil {
		return nil, err
	}
	for _, sw := range reportSwitches {
		key, on, err := parseSwitch(sw)
		if err != nil {
			return nil, err
		}
		if err := toggles.Set(key, on); err != nil {
			return nil, err
		}
	}

	for _, name := range p.aggregatorNames() {
		agg, err := p.newAggregator(name, a.registry, store, bus)
		if err != nil {
			return nil, err
		}
		if err := agg.Install(a.dag); err != nil {
			return nil, err
		}
		a.aggregators = append(a.aggregators, agg)
	}
	return a, nil
}

// requested resolves the tasks to run: explicit arguments, then the build
// file's defaults, then every task.
func (a *assembled) requested(args []string) []string {
	if len(args) > 0 {
		return args
	}
	if len(a.def.Default) > 0 {
		return a.def.Default
	}
	var all []string
	for _, task := range a.dag.Tasks() {
		all = append(all, task.ID)
	}
	return all
}

func parseSwitch(s string) (string, bool, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", false, fmt.Errorf("invalid report switch %q, want <task>/<report>=on|off", s)
	}
	switch strings.ToLower(value) {
	case "on", "true", "yes":
		return key, true, nil
	case "off", "false", "no":
		return key, false, nil
	}
	return "", false, fmt.Errorf("invalid report switch value %q, want on or off", value)
}

