package aggregate

import (
	"github.com/aristath/reportagg/internal/reporting"
)

// Planner answers whether a task is part of the current execution plan.
type Planner interface {
	Includes(taskID string) bool
}

// Discover filters registered producers down to those that will take part
// in this build, keeping registration order. Producers whose task was never
// requested are dropped; an aggregator never discovers itself. A non-empty
// testType keeps only producers of that test type.
func Discover(registered []reporting.Producer, plan Planner, self, testType string) []reporting.Producer {
	discovered := make([]reporting.Producer, 0, len(registered))
	for _, p := range registered {
		if p.TaskID == self || !plan.Includes(p.TaskID) {
			continue
		}
		if testType != "" && p.TestType != testType {
			continue
		}
		discovered = append(discovered, p)
	}
	return discovered
}
