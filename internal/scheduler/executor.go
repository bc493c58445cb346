package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/reportagg/internal/logging"
)

// Executor runs single tasks with guard evaluation, up-to-date checks and
// output locking. Task outcomes are recorded in the DAG, not returned.
type Executor struct {
	dag    *DAG
	locks  *OutputLocks
	logger *slog.Logger
}

// NewExecutor creates a new Executor. A nil logger discards output.
func NewExecutor(dag *DAG, locks *OutputLocks, logger *slog.Logger) *Executor {
	if locks == nil {
		locks = NewOutputLocks()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		dag:    dag,
		locks:  locks,
		logger: logger,
	}
}

// ExecuteTask runs a single eligible task. The returned error reports
// misuse (unknown or non-pending task); the task's own outcome is in the DAG.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) error {
	task, exists := e.dag.Get(taskID)
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	if task.Status != TaskPending {
		return fmt.Errorf("task %q is not pending (status: %s)", taskID, task.Status)
	}

	// Strict dependencies must have succeeded or been skipped
	for _, depID := range task.DependsOn {
		dep, ok := e.dag.Get(depID)
		if !ok || !e.dag.isDependencyResolved(dep) {
			return fmt.Errorf("task %q has unresolved dependency %q", taskID, depID)
		}
	}

	log := e.logger.With("task", taskID)

	if err := ctx.Err(); err != nil {
		return e.dag.MarkNotExecuted(taskID, fmt.Errorf("context cancelled before execution: %w", err))
	}

	if task.Admit != nil {
		if err := task.Admit(e.dag); err != nil {
			log.Info("task excluded", "reason", err)
			return e.dag.MarkNotExecuted(taskID, err)
		}
	}

	if task.OnlyIf != nil && !task.OnlyIf(e.dag) {
		log.Debug("task skipped", "reason", SkipOnlyIf)
		return e.dag.MarkSkipped(taskID, SkipOnlyIf)
	}

	if err := e.dag.MarkRunning(taskID); err != nil {
		return err
	}

	release := e.locks.Acquire(task.Outputs)
	defer release()

	if task.UpToDate != nil {
		upToDate, err := task.UpToDate(ctx)
		switch {
		case err != nil:
			log.Warn("up-to-date check failed, executing task", "error", err)
		case upToDate:
			log.Info("task up to date")
			return e.dag.MarkSkipped(taskID, SkipUpToDate)
		}
	}

	if task.Action == nil {
		return e.dag.MarkSkipped(taskID, SkipNoAction)
	}

	if err := runAction(ctx, task.Action); err != nil {
		log.Warn("task failed", "error", err)
		return e.dag.MarkFailed(taskID, err)
	}

	return e.dag.MarkSucceeded(taskID)
}

func runAction(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return action(ctx)
}
