// Package aggregate schedules and builds aggregate report pages: it
// discovers report-producing tasks when the task graph is finalized, orders
// itself after them without depending on them, skips itself when nothing
// relevant changed and composes an index of the reports that exist.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/reportagg/internal/events"
	"github.com/aristath/reportagg/internal/logging"
	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// ErrProducerNotExecuted excludes the aggregator when a discovered producer
// never ran because its own prerequisite failed.
var ErrProducerNotExecuted = errors.New("report producer was not executed")

// Options configures an Aggregator.
type Options struct {
	Name      string   // Report name; the task ID defaults to <Name>AggregateReport
	TaskID    string   // Overrides the derived task ID
	Title     string   // Document title; defaults from Name
	TestType  string   // Only aggregate producers of this test type (empty = all)
	ReportDir string   // Base directory; output goes to <ReportDir>/<TaskID>/index.html
	DependsOn []string // User-declared direct dependencies of the aggregator

	Registry *reporting.Registry
	Store    StateStore
	Renderer Renderer         // Defaults to HTMLRenderer
	Events   events.Publisher // Defaults to events.Discard
	Logger   *slog.Logger
	Probe    ProbePolicy // Defaults to DefaultProbePolicy
}

// Aggregator is the report aggregation task.
type Aggregator struct {
	taskID    string
	title     string
	testType  string
	output    string
	dependsOn []string

	registry *reporting.Registry
	renderer Renderer
	events   events.Publisher
	logger   *slog.Logger
	tracker  *Tracker
	composer *Composer

	// Set once at finalization
	outcomes    scheduler.Outcomes
	discovered  []reporting.Producer
	fingerprint string
}

// New creates an aggregator. Registry and Store are required.
func New(opts Options) (*Aggregator, error) {
	if opts.Registry == nil {
		return nil, errors.New("aggregator requires a report registry")
	}
	if opts.Store == nil {
		return nil, errors.New("aggregator requires a state store")
	}

	taskID := opts.TaskID
	if taskID == "" {
		if opts.Name == "" {
			return nil, errors.New("aggregator requires a name or task ID")
		}
		taskID = TaskIDFor(opts.Name)
	}
	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("%s aggregate report", opts.Name)
		if opts.Name == "" {
			title = taskID
		}
	}
	if opts.Renderer == nil {
		opts.Renderer = HTMLRenderer{}
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Probe == (ProbePolicy{}) {
		opts.Probe = DefaultProbePolicy()
	}

	output := OutputPath(opts.ReportDir, taskID)
	outputDir := filepath.Dir(output)
	logger := opts.Logger.With("aggregator", taskID)

	return &Aggregator{
		taskID:    taskID,
		title:     title,
		testType:  opts.TestType,
		output:    output,
		dependsOn: append([]string(nil), opts.DependsOn...),
		registry:  opts.Registry,
		renderer:  opts.Renderer,
		events:    opts.Events,
		logger:    logger,
		tracker:   NewTracker(opts.Store, taskID, output, opts.Probe),
		composer: &Composer{
			Title:     title,
			OutputDir: outputDir,
			Policy:    opts.Probe,
			Logger:    logger,
		},
	}, nil
}

// TaskIDFor returns the task ID of the aggregator for a report name.
func TaskIDFor(name string) string {
	return name + "AggregateReport"
}

// OutputPath returns where the aggregator taskID writes its document.
func OutputPath(reportDir, taskID string) string {
	return filepath.Join(reportDir, taskID, "index.html")
}

// TaskID returns the aggregator's task ID.
func (a *Aggregator) TaskID() string { return a.taskID }

// Output returns the path of the aggregate document.
func (a *Aggregator) Output() string { return a.output }

// Discovered returns the producers discovered at finalization.
func (a *Aggregator) Discovered() []reporting.Producer {
	return append([]reporting.Producer(nil), a.discovered...)
}

// Install adds the aggregator task to the graph and registers discovery to
// run when the graph is finalized.
func (a *Aggregator) Install(dag *scheduler.DAG) error {
	task := &scheduler.Task{
		ID:        a.taskID,
		Name:      a.title,
		DependsOn: a.dependsOn,
		Outputs:   []string{a.output},
		Admit:     a.admit,
		Action:    a.run,
	}
	if err := dag.AddTask(task); err != nil {
		return fmt.Errorf("installing aggregator %q: %w", a.taskID, err)
	}
	a.outcomes = dag

	return dag.OnFinalize(a.finalize)
}

// finalize runs discovery once, wires ordering edges and the up-to-date check.
func (a *Aggregator) finalize(p *scheduler.Plan) error {
	if !p.Includes(a.taskID) {
		return nil
	}

	a.discovered = Discover(a.registry.Producers(), p, a.taskID, a.testType)
	for _, producer := range a.discovered {
		if err := p.MustRunAfter(a.taskID, producer.TaskID); err != nil {
			return err
		}
		for _, slot := range producer.Slots {
			if slot.Location == nil {
				a.logger.Warn("report slot has no output location; it will always be unavailable",
					"producer", producer.TaskID, "slot", slot.Name)
			}
		}
	}

	fingerprint, err := Fingerprint(a.title, a.discovered)
	if err != nil {
		return err
	}
	a.fingerprint = fingerprint

	a.logger.Info("discovered report producers", "count", len(a.discovered))
	return p.SetUpToDate(a.taskID, a.upToDate)
}

// admit excludes the aggregator when one of its own direct dependencies
// failed or was not executed, or when a discovered producer was not
// executed. A producer that ran and failed does not exclude it.
func (a *Aggregator) admit(outcomes scheduler.Outcomes) error {
	for _, depID := range a.dependsOn {
		switch status := outcomes.Outcome(depID); status {
		case scheduler.TaskFailed, scheduler.TaskNotExecuted:
			return fmt.Errorf("dependency %q %s", depID, status)
		}
	}
	for _, producer := range a.discovered {
		if outcomes.Outcome(producer.TaskID) == scheduler.TaskNotExecuted {
			return fmt.Errorf("%w: %s", ErrProducerNotExecuted, producer.TaskID)
		}
	}
	return nil
}

func (a *Aggregator) upToDate(ctx context.Context) (bool, error) {
	decision, err := a.tracker.Check(ctx, a.fingerprint, a.discovered)
	if err != nil {
		return false, err
	}
	a.logger.Debug("up-to-date check", "state", decision.State, "reason", decision.Reason)
	return decision.State == UpToDate, nil
}

// run composes the document, writes it atomically and records the new state.
func (a *Aggregator) run(ctx context.Context) error {
	doc, err := a.composer.Compose(ctx, a.discovered, a.outcomes)
	if err != nil {
		return fmt.Errorf("composing aggregate: %w", err)
	}

	hash, err := writeAtomic(a.output, a.renderer, doc)
	if err != nil {
		return err
	}

	info, err := os.Stat(a.output)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", a.output, err)
	}
	if err := a.tracker.Record(ctx, a.fingerprint, hash, info.ModTime()); err != nil {
		return fmt.Errorf("recording aggregate state: %w", err)
	}

	available, unavailable := doc.Counts()
	a.logger.Info("aggregate written", "path", a.output, "available", available, "unavailable", unavailable)
	a.events.Publish(events.TopicAggregate, events.AggregateWrittenEvent{
		ID:          a.taskID,
		Path:        a.output,
		Available:   available,
		Unavailable: unavailable,
		Timestamp:   time.Now(),
	})
	return nil
}
