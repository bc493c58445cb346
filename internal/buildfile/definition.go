// Package buildfile loads YAML build definitions: tasks with shell commands,
// their dependencies and the reports they produce.
package buildfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SlotDefinition is one report a task may produce.
type SlotDefinition struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`              // Relative to the build file directory
	Enabled *bool  `yaml:"enabled,omitempty"` // Defaults to true
}

// ReportsDefinition declares a task as a report producer.
type ReportsDefinition struct {
	TestType string           `yaml:"test_type,omitempty"`
	Slots    []SlotDefinition `yaml:"slots"`
}

// TaskDefinition is one task of the build.
type TaskDefinition struct {
	ID           string             `yaml:"id"`
	Description  string             `yaml:"description,omitempty"`
	Run          string             `yaml:"run,omitempty"` // Shell command; empty means nothing to do
	Dir          string             `yaml:"dir,omitempty"` // Working directory, relative to the build file
	DependsOn    []string           `yaml:"depends_on,omitempty"`
	MustRunAfter []string           `yaml:"must_run_after,omitempty"`
	Outputs      []string           `yaml:"outputs,omitempty"`
	Reports      *ReportsDefinition `yaml:"reports,omitempty"`
}

// Definition is a parsed build file.
type Definition struct {
	Tasks   []TaskDefinition `yaml:"tasks"`
	Default []string         `yaml:"default,omitempty"` // Tasks requested when none are given

	// Directory the build file was loaded from; relative paths resolve against it
	BaseDir string `yaml:"-"`
}

// Parse decodes and validates a build definition.
func Parse(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("buildfile: definition is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("buildfile: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads a build file from disk.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildfile: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("buildfile: %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("buildfile: resolve %s: %w", path, err)
	}
	def.BaseDir = abs
	return def, nil
}

// Validate checks identifiers and references.
func (d *Definition) Validate() error {
	if len(d.Tasks) == 0 {
		return fmt.Errorf("buildfile: no tasks defined")
	}

	ids := make(map[string]bool, len(d.Tasks))
	for i, task := range d.Tasks {
		id := strings.TrimSpace(task.ID)
		if id == "" {
			return fmt.Errorf("buildfile: task %d has no id", i)
		}
		if ids[id] {
			return fmt.Errorf("buildfile: duplicate task id %q", id)
		}
		ids[id] = true

		if task.Reports == nil {
			continue
		}
		slots := make(map[string]bool, len(task.Reports.Slots))
		for _, slot := range task.Reports.Slots {
			if slot.Name == "" {
				return fmt.Errorf("buildfile: task %q has a report without a name", id)
			}
			if slots[slot.Name] {
				return fmt.Errorf("buildfile: task %q declares report %q twice", id, slot.Name)
			}
			slots[slot.Name] = true
		}
	}

	for _, task := range d.Tasks {
		for _, ref := range append(append([]string(nil), task.DependsOn...), task.MustRunAfter...) {
			if !ids[ref] {
				return fmt.Errorf("buildfile: task %q references unknown task %q", task.ID, ref)
			}
		}
	}
	for _, ref := range d.Default {
		if !ids[ref] {
			return fmt.Errorf("buildfile: default task %q is not defined", ref)
		}
	}
	return nil
}

func (d *Definition) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || d.BaseDir == "" {
		return path
	}
	return filepath.Join(d.BaseDir, path)
}
