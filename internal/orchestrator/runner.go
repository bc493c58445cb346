package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/reportagg/internal/events"
	"github.com/aristath/reportagg/internal/logging"
	"github.com/aristath/reportagg/internal/scheduler"
)

// ErrBuildStopped is recorded on tasks left pending when the build stops
// after a failure.
var ErrBuildStopped = errors.New("build stopped after a task failure")

// RunnerConfig configures the runner.
type RunnerConfig struct {
	ConcurrencyLimit  int              // Max concurrent tasks (default 4)
	ContinueOnFailure bool             // Keep running tasks not downstream of a failure
	BuildID           string           // Attached to published events
	Events            events.Publisher // Optional (nil discards)
	Logger            *slog.Logger
}

// Runner executes the plan of a finalized DAG in waves with bounded concurrency.
type Runner struct {
	config   RunnerConfig
	dag      *scheduler.DAG
	executor *scheduler.Executor
	logger   *slog.Logger
}

// NewRunner creates a runner over dag. Tasks declaring the same output
// serialize through locks.
func NewRunner(cfg RunnerConfig, dag *scheduler.DAG, locks *scheduler.OutputLocks) *Runner {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 4
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &Runner{
		config:   cfg,
		dag:      dag,
		executor: scheduler.NewExecutor(dag, locks, cfg.Logger),
		logger:   cfg.Logger,
	}
}

// Run executes every task of the plan until all of them have settled.
// Task failures are recorded in the DAG; the returned error is only set when
// the context ends the build.
func (r *Runner) Run(ctx context.Context) error {
	if !r.dag.Finalized() {
		return scheduler.ErrNotFinalized
	}

	for {
		if err := ctx.Err(); err != nil {
			r.settle(r.dag.MarkRemainingNotExecuted(fmt.Errorf("build cancelled: %w", err)))
			return err
		}

		r.settle(r.dag.PropagateFailures())

		eligible := r.dag.Eligible()
		if len(eligible) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.config.ConcurrencyLimit)

		for _, task := range eligible {
			t := task
			g.Go(func() error {
				r.executeTask(gctx, t.ID)
				return nil
			})
		}
		_ = g.Wait()

		if !r.config.ContinueOnFailure && r.waveFailed(eligible) {
			r.logger.Warn("stopping build after failure")
			r.settle(r.dag.MarkRemainingNotExecuted(ErrBuildStopped))
			break
		}
	}

	// Anything still pending here is unreachable
	r.settle(r.dag.MarkRemainingNotExecuted(errors.New("task never became ready")))
	return nil
}

func (r *Runner) executeTask(ctx context.Context, taskID string) {
	start := time.Now()
	r.config.Events.Publish(events.TopicTask, events.TaskStartedEvent{
		BuildID:   r.config.BuildID,
		ID:        taskID,
		Timestamp: start,
	})

	if err := r.executor.ExecuteTask(ctx, taskID); err != nil {
		r.logger.Error("task could not be executed", "task", taskID, "error", err)
		return
	}

	task, _ := r.dag.Get(taskID)
	r.publishFinished(task, time.Since(start))
}

// settle publishes finished events for tasks settled without running.
func (r *Runner) settle(ids []string) {
	for _, id := range ids {
		task, ok := r.dag.Get(id)
		if !ok {
			continue
		}
		r.logger.Info("task not executed", "task", id, "reason", task.Error)
		r.publishFinished(task, 0)
	}
}

func (r *Runner) publishFinished(task *scheduler.Task, elapsed time.Duration) {
	r.config.Events.Publish(events.TopicTask, events.TaskFinishedEvent{
		BuildID:   r.config.BuildID,
		ID:        task.ID,
		Status:    task.Status.String(),
		Reason:    task.SkipReason,
		Err:       task.Error,
		Duration:  elapsed,
		Timestamp: time.Now(),
	})
}

func (r *Runner) waveFailed(wave []*scheduler.Task) bool {
	for _, t := range wave {
		if r.dag.Outcome(t.ID) == scheduler.TaskFailed {
			return true
		}
	}
	return false
}
