package scheduler

import "context"

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending     TaskStatus = iota // Waiting for dependencies
	TaskRunning                       // Currently executing
	TaskSucceeded                     // Finished successfully
	TaskFailed                        // Finished with error
	TaskSkipped                       // Intentionally not run (OnlyIf false, up to date, no action)
	TaskNotExecuted                   // Never started because a prerequisite failed or the build stopped
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "PENDING"
	case TaskRunning:
		return "RUNNING"
	case TaskSucceeded:
		return "SUCCEEDED"
	case TaskFailed:
		return "FAILED"
	case TaskSkipped:
		return "SKIPPED"
	case TaskNotExecuted:
		return "NOT-EXECUTED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the task ran to a terminal state (Succeeded, Failed or Skipped).
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskSkipped
}

// Settled reports whether the task will not change state again in this build.
func (s TaskStatus) Settled() bool {
	return s.Terminal() || s == TaskNotExecuted
}

// Skip reasons recorded alongside TaskSkipped.
const (
	SkipUpToDate = "UP-TO-DATE"
	SkipOnlyIf   = "SKIPPED"
	SkipNoAction = "NO-SOURCE"
)

// Outcomes gives read access to the state of other tasks in the same build.
type Outcomes interface {
	Outcome(taskID string) TaskStatus
}

// Action is the body of a task.
type Action func(ctx context.Context) error

// Task represents a unit of work in the DAG.
type Task struct {
	ID           string   // Unique identifier
	Name         string   // Human-readable name
	DependsOn    []string // Strict dependencies: failure propagates
	MustRunAfter []string // Ordering-only predecessors: no failure propagation
	Outputs      []string // Paths written by the task (for resource locking)

	// OnlyIf is evaluated right before execution; false marks the task Skipped.
	OnlyIf func(Outcomes) bool
	// Admit is evaluated right before execution; a non-nil error excludes the
	// task and marks it NotExecuted.
	Admit func(Outcomes) error
	// UpToDate is evaluated after Admit; true marks the task Skipped (UP-TO-DATE).
	UpToDate func(ctx context.Context) (bool, error)
	// Action is the task body. A nil action marks the task Skipped (NO-SOURCE).
	Action Action

	Status     TaskStatus
	SkipReason string // Populated when Status is TaskSkipped
	Error      error  // Error if failed or not executed
}
