package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

var (
	ErrFinalized    = errors.New("task graph already finalized")
	ErrNotFinalized = errors.New("task graph not finalized")
	ErrUnknownTask  = errors.New("unknown task")
)

// FinalizeHook runs once, when the execution plan is known but before
// ordering is fixed.
type FinalizeHook func(p *Plan) error

// DAG represents a directed acyclic graph of tasks.
// It has two phases: configuration (AddTask, OnFinalize) and execution,
// separated by a single call to Finalize.
type DAG struct {
	mu        sync.RWMutex
	tasks     map[string]*Task // All tasks indexed by ID
	index     map[string]int   // Insertion order, for deterministic iteration
	hooks     []FinalizeHook
	finalized bool
	plan      map[string]bool // Tasks in the execution plan
	order     []string        // Topological order of the plan
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks: make(map[string]*Task),
		index: make(map[string]int),
		plan:  make(map[string]bool),
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists
// or the graph has been finalized.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finalized {
		return fmt.Errorf("adding task %q: %w", task.ID, ErrFinalized)
	}
	if task.ID == "" {
		return errors.New("task ID is required")
	}
	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.index[task.ID] = len(d.index)
	return nil
}

// OnFinalize registers a hook that runs during Finalize, in registration order.
func (d *DAG) OnFinalize(hook FinalizeHook) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finalized {
		return ErrFinalized
	}
	d.hooks = append(d.hooks, hook)
	return nil
}

// Validate runs topological sort over every task using both strict and
// ordering edges. Returns ordered task IDs or error if a cycle is detected
// or an edge points at a task that does not exist.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for taskID, task := range d.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
		for _, predID := range task.MustRunAfter {
			if _, exists := d.tasks[predID]; !exists {
				return nil, fmt.Errorf("task %q must run after non-existent task %q", taskID, predID)
			}
		}
	}

	return d.sortLocked(func(string) bool { return true })
}

// Finalize closes the configuration phase. The execution plan is the strict
// dependency closure of the requested tasks; ordering edges never pull tasks
// into the plan. Finalize hooks then run exactly once and the plan is
// validated. After Finalize, AddTask and OnFinalize fail with ErrFinalized.
func (d *DAG) Finalize(requested ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finalized {
		return ErrFinalized
	}

	// Strict dependency closure of the requested tasks
	plan := make(map[string]bool)
	stack := append([]string(nil), requested...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if plan[id] {
			continue
		}
		task, exists := d.tasks[id]
		if !exists {
			return fmt.Errorf("requesting %q: %w", id, ErrUnknownTask)
		}
		plan[id] = true
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return fmt.Errorf("task %q depends on non-existent task %q", id, depID)
			}
			stack = append(stack, depID)
		}
	}
	d.plan = plan
	restore := d.snapshotLocked()

	p := &Plan{dag: d, open: true}
	for _, hook := range d.hooks {
		if err := hook(p); err != nil {
			p.open = false
			restore()
			return fmt.Errorf("finalize hook: %w", err)
		}
	}
	p.open = false

	order, err := d.sortLocked(func(id string) bool { return d.plan[id] })
	if err != nil {
		restore()
		return err
	}
	d.order = order
	d.finalized = true
	return nil
}

// snapshotLocked records what finalize hooks may change and returns a
// function that puts it back and clears the plan, so a failed Finalize
// leaves the graph as it was configured.
func (d *DAG) snapshotLocked() (restore func()) {
	type hookState struct {
		mustRunAfter []string
		upToDate     func(ctx context.Context) (bool, error)
	}
	saved := make(map[string]hookState, len(d.tasks))
	for id, task := range d.tasks {
		saved[id] = hookState{
			mustRunAfter: append([]string(nil), task.MustRunAfter...),
			upToDate:     task.UpToDate,
		}
	}
	return func() {
		for id, state := range saved {
			task := d.tasks[id]
			task.MustRunAfter = state.mustRunAfter
			task.UpToDate = state.upToDate
		}
		d.plan = nil
	}
}

// sortLocked topologically sorts the tasks accepted by include.
// Ordering edges from tasks outside the selection are ignored.
func (d *DAG) sortLocked(include func(string) bool) ([]string, error) {
	ids := d.sortedIDsLocked(include)

	var edges []toposort.Edge
	for _, taskID := range ids {
		task := d.tasks[taskID]
		edges = append(edges, toposort.Edge{nil, taskID})
		for _, depID := range task.DependsOn {
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, taskID})
		}
		for _, predID := range task.MustRunAfter {
			if _, exists := d.tasks[predID]; !exists || !include(predID) {
				continue
			}
			edges = append(edges, toposort.Edge{predID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(ids) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		missing := []string{}
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// sortedIDsLocked returns task IDs accepted by include in insertion order.
func (d *DAG) sortedIDsLocked(include func(string) bool) []string {
	ids := make([]string, 0, len(d.tasks))
	for id := range d.tasks {
		if include(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return d.index[ids[i]] < d.index[ids[j]] })
	return ids
}

// Finalized reports whether Finalize has completed.
func (d *DAG) Finalized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.finalized
}

// Includes reports whether the task is part of the execution plan.
func (d *DAG) Includes(taskID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.plan[taskID]
}

// Order returns the topologically sorted execution plan.
func (d *DAG) Order() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.finalized {
		return nil, ErrNotFinalized
	}
	return append([]string(nil), d.order...), nil
}

// Outcome returns the current status of a task. Unknown tasks report TaskPending.
func (d *DAG) Outcome(taskID string) TaskStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if task, exists := d.tasks[taskID]; exists {
		return task.Status
	}
	return TaskPending
}

// Eligible returns pending plan tasks whose strict dependencies and in-plan
// ordering predecessors have all settled, in insertion order.
// Tasks with a failed or not-executed strict dependency are never eligible;
// PropagateFailures settles them.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}
	if !d.finalized {
		return eligible
	}

	for _, id := range d.sortedIDsLocked(func(id string) bool { return d.plan[id] }) {
		task := d.tasks[id]
		if task.Status != TaskPending {
			continue
		}

		ready := true
		for _, depID := range task.DependsOn {
			if !d.isDependencyResolved(d.tasks[depID]) {
				ready = false
				break
			}
		}
		for _, predID := range task.MustRunAfter {
			if !ready {
				break
			}
			pred, exists := d.tasks[predID]
			if !exists || !d.plan[predID] {
				continue
			}
			if !pred.Status.Settled() {
				ready = false
			}
		}

		if ready {
			eligible = append(eligible, cloneTask(task))
		}
	}

	return eligible
}

// isDependencyResolved checks if a strict dependency lets its dependents run.
func (d *DAG) isDependencyResolved(dep *Task) bool {
	switch dep.Status {
	case TaskSucceeded, TaskSkipped:
		return true
	}
	return false
}

// PropagateFailures marks pending plan tasks whose strict dependencies
// failed or were not executed as TaskNotExecuted, repeating until nothing
// changes. Returns the IDs it marked, in insertion order.
func (d *DAG) PropagateFailures() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var marked []string
	for changed := true; changed; {
		changed = false
		for _, id := range d.sortedIDsLocked(func(id string) bool { return d.plan[id] }) {
			task := d.tasks[id]
			if task.Status != TaskPending {
				continue
			}
			for _, depID := range task.DependsOn {
				dep := d.tasks[depID]
				if dep.Status == TaskFailed || dep.Status == TaskNotExecuted {
					task.Status = TaskNotExecuted
					task.Error = fmt.Errorf("dependency %q %s", depID, strings.ToLower(dep.Status.String()))
					marked = append(marked, id)
					changed = true
					break
				}
			}
		}
	}
	return marked
}

// MarkRemainingNotExecuted settles every pending plan task as TaskNotExecuted.
// Used when the build stops early.
func (d *DAG) MarkRemainingNotExecuted(reason error) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var marked []string
	for _, id := range d.sortedIDsLocked(func(id string) bool { return d.plan[id] }) {
		task := d.tasks[id]
		if task.Status == TaskPending {
			task.Status = TaskNotExecuted
			task.Error = reason
			marked = append(marked, id)
		}
	}
	return marked
}

// MarkRunning sets task status to TaskRunning.
func (d *DAG) MarkRunning(taskID string) error {
	return d.mark(taskID, func(t *Task) {
		t.Status = TaskRunning
	})
}

// MarkSucceeded sets task status to TaskSucceeded.
func (d *DAG) MarkSucceeded(taskID string) error {
	return d.mark(taskID, func(t *Task) {
		t.Status = TaskSucceeded
		t.Error = nil
	})
}

// MarkFailed sets task status to TaskFailed and stores error.
func (d *DAG) MarkFailed(taskID string, err error) error {
	return d.mark(taskID, func(t *Task) {
		t.Status = TaskFailed
		t.Error = err
	})
}

// MarkSkipped sets task status to TaskSkipped with the given reason.
func (d *DAG) MarkSkipped(taskID string, reason string) error {
	return d.mark(taskID, func(t *Task) {
		t.Status = TaskSkipped
		t.SkipReason = reason
	})
}

// MarkNotExecuted sets task status to TaskNotExecuted and stores the reason.
func (d *DAG) MarkNotExecuted(taskID string, reason error) error {
	return d.mark(taskID, func(t *Task) {
		t.Status = TaskNotExecuted
		t.Error = reason
	})
}

func (d *DAG) mark(taskID string, apply func(*Task)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	apply(task)
	return nil
}

// Get returns task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.sortedIDsLocked(func(string) bool { return true })
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, cloneTask(d.tasks[id]))
	}
	return tasks
}

// Plan is the view of the execution plan handed to finalize hooks. It is
// only usable while the hooks run.
type Plan struct {
	dag  *DAG
	open bool
}

// Includes reports whether the task will be part of this build.
func (p *Plan) Includes(taskID string) bool {
	return p.dag.plan[taskID]
}

// Tasks returns the plan's task IDs in insertion order.
func (p *Plan) Tasks() []string {
	return p.dag.sortedIDsLocked(func(id string) bool { return p.dag.plan[id] })
}

// MustRunAfter adds an ordering-only edge: if predecessorID executes,
// taskID does not start before it settles.
func (p *Plan) MustRunAfter(taskID, predecessorID string) error {
	task, err := p.task(taskID)
	if err != nil {
		return err
	}
	if _, exists := p.dag.tasks[predecessorID]; !exists {
		return fmt.Errorf("ordering %q after %q: %w", taskID, predecessorID, ErrUnknownTask)
	}
	for _, existing := range task.MustRunAfter {
		if existing == predecessorID {
			return nil
		}
	}
	task.MustRunAfter = append(task.MustRunAfter, predecessorID)
	return nil
}

// SetUpToDate installs the up-to-date predicate of a task.
func (p *Plan) SetUpToDate(taskID string, pred func(ctx context.Context) (bool, error)) error {
	task, err := p.task(taskID)
	if err != nil {
		return err
	}
	task.UpToDate = pred
	return nil
}

func (p *Plan) task(taskID string) (*Task, error) {
	if !p.open {
		return nil, ErrFinalized
	}
	task, exists := p.dag.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrUnknownTask)
	}
	return task, nil
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.MustRunAfter != nil {
		cp.MustRunAfter = append([]string(nil), task.MustRunAfter...)
	}
	if task.Outputs != nil {
		cp.Outputs = append([]string(nil), task.Outputs...)
	}
	return &cp
}
