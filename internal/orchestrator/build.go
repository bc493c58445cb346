package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/reportagg/internal/events"
	"github.com/aristath/reportagg/internal/logging"
	"github.com/aristath/reportagg/internal/persistence"
	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// OutcomeRecorder stores per-build task outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, rec persistence.OutcomeRecord) error
}

// Summary is the result of one build invocation.
type Summary struct {
	BuildID     string
	Outcomes    []persistence.OutcomeRecord // In execution plan order
	Succeeded   int
	Failed      int
	Skipped     int
	NotExecuted int
	Duration    time.Duration
}

// OK reports whether no task failed or was left unexecuted.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.NotExecuted == 0
}

// Outcome returns the recorded outcome of a task in this build.
func (s *Summary) Outcome(taskID string) (persistence.OutcomeRecord, bool) {
	for _, rec := range s.Outcomes {
		if rec.TaskID == taskID {
			return rec, true
		}
	}
	return persistence.OutcomeRecord{}, false
}

// Build is one build invocation over a configured DAG and report registry.
type Build struct {
	ID       string
	dag      *scheduler.DAG
	registry *reporting.Registry
	recorder OutcomeRecorder
	config   RunnerConfig
	locks    *scheduler.OutputLocks
}

// NewBuild creates a build with a fresh ID. recorder may be nil.
func NewBuild(dag *scheduler.DAG, registry *reporting.Registry, recorder OutcomeRecorder, cfg RunnerConfig) *Build {
	if cfg.BuildID == "" {
		cfg.BuildID = uuid.New().String()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	cfg.Logger = cfg.Logger.With("build", cfg.BuildID)

	return &Build{
		ID:       cfg.BuildID,
		dag:      dag,
		registry: registry,
		recorder: recorder,
		config:   cfg,
		locks:    scheduler.NewOutputLocks(),
	}
}

// Run seals the registry, finalizes the graph for the requested tasks,
// executes the plan and records every outcome.
func (b *Build) Run(ctx context.Context, requested ...string) (*Summary, error) {
	start := time.Now()
	logger := b.config.Logger

	if b.registry != nil {
		b.registry.Seal()
	}
	if err := b.dag.Finalize(requested...); err != nil {
		return nil, fmt.Errorf("finalizing build: %w", err)
	}
	order, err := b.dag.Order()
	if err != nil {
		return nil, err
	}
	logger.Info("build started", "tasks", len(order))

	runErr := NewRunner(b.config, b.dag, b.locks).Run(ctx)

	if b.registry != nil {
		for _, id := range b.registry.Late() {
			logger.Warn("report producer registered after discovery; its reports are not aggregated", "producer", id)
		}
	}

	summary := &Summary{BuildID: b.ID}
	recordCtx := context.WithoutCancel(ctx)
	for _, id := range order {
		task, ok := b.dag.Get(id)
		if !ok {
			continue
		}
		rec := persistence.OutcomeRecord{
			BuildID:    b.ID,
			TaskID:     id,
			Status:     task.Status.String(),
			Reason:     task.SkipReason,
			RecordedAt: time.Now(),
		}
		if task.Error != nil {
			rec.Error = task.Error.Error()
		}
		summary.Outcomes = append(summary.Outcomes, rec)

		switch task.Status {
		case scheduler.TaskSucceeded:
			summary.Succeeded++
		case scheduler.TaskFailed:
			summary.Failed++
		case scheduler.TaskSkipped:
			summary.Skipped++
		case scheduler.TaskNotExecuted:
			summary.NotExecuted++
		}

		if b.recorder != nil {
			if err := b.recorder.RecordOutcome(recordCtx, rec); err != nil {
				logger.Error("failed to record outcome", "task", id, "error", err)
			}
		}
	}
	summary.Duration = time.Since(start)

	b.config.Events.Publish(events.TopicBuild, events.BuildFinishedEvent{
		BuildID:     b.ID,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		NotExecuted: summary.NotExecuted,
		Duration:    summary.Duration,
		Timestamp:   time.Now(),
	})
	logger.Info("build finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"not_executed", summary.NotExecuted,
		"duration", summary.Duration)

	return summary, runErr
}
