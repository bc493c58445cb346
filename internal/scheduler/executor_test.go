package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newFinalizedDAG(t *testing.T, tasks ...*Task) *DAG {
	t.Helper()
	dag := NewDAG()
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if err := dag.AddTask(task); err != nil {
			t.Fatalf("AddTask(%q): %v", task.ID, err)
		}
		ids = append(ids, task.ID)
	}
	if err := dag.Finalize(ids...); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return dag
}

func TestExecutor_SuccessfulExecution(t *testing.T) {
	ran := false
	dag := newFinalizedDAG(t, &Task{
		ID:     "task-1",
		Action: func(ctx context.Context) error { ran = true; return nil },
	})

	exec := NewExecutor(dag, nil, nil)
	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !ran {
		t.Error("action was not invoked")
	}
	if got := dag.Outcome("task-1"); got != TaskSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", got)
	}
}

func TestExecutor_FailedExecution(t *testing.T) {
	dag := newFinalizedDAG(t, &Task{
		ID:     "task-1",
		Action: func(ctx context.Context) error { return errors.New("tests failed") },
	})

	exec := NewExecutor(dag, nil, nil)
	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("expected nil return (failure in DAG), got: %v", err)
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskFailed {
		t.Errorf("expected FAILED, got %s", task.Status)
	}
	if task.Error == nil || task.Error.Error() != "tests failed" {
		t.Errorf("expected 'tests failed', got: %v", task.Error)
	}
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	dag := newFinalizedDAG(t, &Task{
		ID:     "task-1",
		Action: func(ctx context.Context) error { panic("boom") },
	})

	exec := NewExecutor(dag, nil, nil)
	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dag.Outcome("task-1"); got != TaskFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
}

func TestExecutor_Hooks(t *testing.T) {
	tests := []struct {
		name       string
		task       *Task
		wantStatus TaskStatus
		wantReason string
		wantRan    bool
	}{
		{
			name:       "admit rejects",
			task:       &Task{Admit: func(Outcomes) error { return errors.New("excluded") }},
			wantStatus: TaskNotExecuted,
		},
		{
			name:       "only-if false",
			task:       &Task{OnlyIf: func(Outcomes) bool { return false }},
			wantStatus: TaskSkipped,
			wantReason: SkipOnlyIf,
		},
		{
			name: "up to date",
			task: &Task{UpToDate: func(context.Context) (bool, error) {
				return true, nil
			}},
			wantStatus: TaskSkipped,
			wantReason: SkipUpToDate,
		},
		{
			name: "stale",
			task: &Task{UpToDate: func(context.Context) (bool, error) {
				return false, nil
			}},
			wantStatus: TaskSucceeded,
			wantRan:    true,
		},
		{
			name: "up-to-date check error runs task",
			task: &Task{UpToDate: func(context.Context) (bool, error) {
				return true, errors.New("state unreadable")
			}},
			wantStatus: TaskSucceeded,
			wantRan:    true,
		},
		{
			name:       "no action",
			task:       &Task{},
			wantStatus: TaskSkipped,
			wantReason: SkipNoAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			tt.task.ID = "task"
			if tt.task.Action == nil && tt.name != "no action" {
				tt.task.Action = func(context.Context) error { ran = true; return nil }
			}
			dag := newFinalizedDAG(t, tt.task)

			if err := NewExecutor(dag, nil, nil).ExecuteTask(context.Background(), "task"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, _ := dag.Get("task")
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.SkipReason != tt.wantReason {
				t.Errorf("skip reason = %q, want %q", got.SkipReason, tt.wantReason)
			}
			if ran != tt.wantRan {
				t.Errorf("action ran = %v, want %v", ran, tt.wantRan)
			}
		})
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	dag := newFinalizedDAG(t, &Task{
		ID:     "task-1",
		Action: func(ctx context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewExecutor(dag, nil, nil).ExecuteTask(ctx, "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dag.Outcome("task-1"); got != TaskNotExecuted {
		t.Errorf("expected NOT-EXECUTED, got %s", got)
	}
}

func TestExecutor_RejectsMisuse(t *testing.T) {
	dag := newFinalizedDAG(t,
		&Task{ID: "dep"},
		&Task{ID: "task", DependsOn: []string{"dep"}},
	)
	exec := NewExecutor(dag, nil, nil)

	if err := exec.ExecuteTask(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown task")
	}
	if err := exec.ExecuteTask(context.Background(), "task"); err == nil {
		t.Error("expected error for unresolved dependency")
	}
	if err := exec.ExecuteTask(context.Background(), "dep"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := exec.ExecuteTask(context.Background(), "dep"); err == nil {
		t.Error("expected error re-executing a settled task")
	}
}

func TestExecutor_OutputLocking(t *testing.T) {
	var current, maxConcurrent atomic.Int32
	action := func(ctx context.Context) error {
		cur := current.Add(1)
		for {
			max := maxConcurrent.Load()
			if cur <= max || maxConcurrent.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	dag := newFinalizedDAG(t,
		&Task{ID: "task-1", Outputs: []string{"build/report.html", "build/a.xml"}, Action: action},
		&Task{ID: "task-2", Outputs: []string{"build/./report.html"}, Action: action},
	)
	exec := NewExecutor(dag, NewOutputLocks(), nil)

	done := make(chan struct{}, 2)
	for _, id := range []string{"task-1", "task-2"} {
		go func(id string) {
			_ = exec.ExecuteTask(context.Background(), id)
			done <- struct{}{}
		}(id)
	}
	<-done
	<-done

	if maxConcurrent.Load() > 1 {
		t.Errorf("expected max concurrent 1 (shared output), got %d", maxConcurrent.Load())
	}
}
