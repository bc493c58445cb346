package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/reportagg/internal/aggregate"
	"github.com/aristath/reportagg/internal/events"
	"github.com/aristath/reportagg/internal/orchestrator"
	"github.com/aristath/reportagg/internal/shell"
)

// errBuildFailed makes the process exit non-zero after the summary was printed.
var errBuildFailed = errors.New("build failed")

func runRun(cmd *cobra.Command, args []string) error {
	opts := optionsFromFlags(cmd)
	continueOnFailure, _ := cmd.Flags().GetBool("continue")
	switches, _ := cmd.Flags().GetStringArray("report")

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := shell.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := pm.KillAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Error killing task processes: %v\n", err)
		}
	}()

	return runBuild(ctx, opts, buildRequest{
		Tasks:    args,
		Continue: continueOnFailure,
		Switches: switches,
	}, pm, cmd.OutOrStdout())
}

// buildRequest carries the run command's arguments.
type buildRequest struct {
	Tasks    []string
	Continue bool
	Switches []string
}

func runBuild(ctx context.Context, opts projectOptions, req buildRequest, pm *shell.ProcessManager, out io.Writer) error {
	p, err := loadProject(opts)
	if err != nil {
		return err
	}

	store, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewEventBus()
	progress := bus.Subscribe(256, events.TopicTask, events.TopicAggregate)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logProgress(p.logger, progress)
	}()

	a, err := p.assemble(opts.BuildFile, store, shell.NewRunner(pm, p.logger), bus, req.Switches)
	if err != nil {
		bus.Close()
		<-done
		return err
	}

	build := orchestrator.NewBuild(a.dag, a.registry, store, orchestrator.RunnerConfig{
		ConcurrencyLimit:  p.cfg.Concurrency,
		ContinueOnFailure: req.Continue || p.cfg.ContinueOnFailure,
		Events:            bus,
		Logger:            p.logger,
	})
	summary, runErr := build.Run(ctx, a.requested(req.Tasks)...)
	bus.Close()
	<-done

	if summary == nil {
		return runErr
	}
	printSummary(out, summary, a.aggregators)
	if runErr != nil {
		return runErr
	}
	if !summary.OK() {
		return errBuildFailed
	}
	return nil
}

func logProgress(logger *slog.Logger, ch <-chan events.Event) {
	for ev := range ch {
		switch e := ev.(type) {
		case events.TaskStartedEvent:
			logger.Debug("task started", "task", e.ID)
		case events.TaskFinishedEvent:
			attrs := []any{"task", e.ID, "status", e.Status, "duration", e.Duration}
			if e.Reason != "" {
				attrs = append(attrs, "reason", e.Reason)
			}
			if e.Err != nil {
				attrs = append(attrs, "error", e.Err)
			}
			logger.Info("task finished", attrs...)
		case events.AggregateWrittenEvent:
			logger.Info("aggregate report", "task", e.ID, "path", e.Path, "available", e.Available, "unavailable", e.Unavailable)
		}
	}
}

func runOutcomes(cmd *cobra.Command, args []string) error {
	p, err := loadProject(optionsFromFlags(cmd))
	if err != nil {
		return err
	}
	store, err := p.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListOutcomes(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no outcomes recorded for build %q", args[0])
	}
	printOutcomes(cmd.OutOrStdout(), records)
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	p, err := loadProject(optionsFromFlags(cmd))
	if err != nil {
		return err
	}
	store, err := p.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	return cleanAggregates(cmd.Context(), p, store, cmd.OutOrStdout())
}

type stateDeleter interface {
	DeleteTaskState(ctx context.Context, taskID string) error
}

func cleanAggregates(ctx context.Context, p *project, store stateDeleter, out io.Writer) error {
	for _, name := range p.aggregatorNames() {
		taskID := aggregate.TaskIDFor(name)
		if err := store.DeleteTaskState(ctx, taskID); err != nil {
			return fmt.Errorf("deleting state of %s: %w", taskID, err)
		}
		dir := filepath.Dir(aggregate.OutputPath(p.path(p.cfg.ReportDir), taskID))
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		fmt.Fprintf(out, "cleaned %s\n", taskID)
	}
	return nil
}
