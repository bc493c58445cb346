package buildfile

import (
	"context"
	"fmt"

	"github.com/aristath/reportagg/internal/reporting"
	"github.com/aristath/reportagg/internal/scheduler"
)

// CommandRunner executes a task's shell command.
type CommandRunner interface {
	Run(ctx context.Context, taskID, line, dir string) error
}

// Toggles holds the enabled switch of every declared report, keyed
// "<task>/<report>". Switches may be flipped until the build is finalized.
type Toggles map[string]*reporting.Toggle

// Set flips a report switch. Unknown keys are an error.
func (t Toggles) Set(key string, on bool) error {
	toggle, ok := t[key]
	if !ok {
		return fmt.Errorf("unknown report %q", key)
	}
	toggle.Set(on)
	return nil
}

// Install adds every task of the definition to dag and registers report
// producers in registry.
func (d *Definition) Install(dag *scheduler.DAG, registry *reporting.Registry, runner CommandRunner) (Toggles, error) {
	toggles := make(Toggles)

	for _, def := range d.Tasks {
		task := &scheduler.Task{
			ID:           def.ID,
			Name:         def.Description,
			DependsOn:    def.DependsOn,
			MustRunAfter: def.MustRunAfter,
		}
		for _, out := range def.Outputs {
			task.Outputs = append(task.Outputs, d.resolve(out))
		}
		if def.Run != "" {
			id, line, dir := def.ID, def.Run, d.resolve(def.Dir)
			if dir == "" {
				dir = d.BaseDir
			}
			task.Action = func(ctx context.Context) error {
				return runner.Run(ctx, id, line, dir)
			}
		}
		if err := dag.AddTask(task); err != nil {
			return nil, err
		}

		if def.Reports == nil {
			continue
		}
		producer := reporting.Producer{TaskID: def.ID, TestType: def.Reports.TestType}
		for _, s := range def.Reports.Slots {
			on := s.Enabled == nil || *s.Enabled
			toggle := reporting.NewToggle(on)
			toggles[def.ID+"/"+s.Name] = toggle

			slot := reporting.Slot{Name: s.Name, Enabled: toggle.Enabled}
			if s.Path != "" {
				slot.Location = reporting.Fixed(d.resolve(s.Path))
			}
			producer.Slots = append(producer.Slots, slot)
		}
		registry.Register(producer)
	}

	return toggles, nil
}
