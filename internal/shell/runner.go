package shell

import (
	"context"
	"log/slog"
	"os"

	"github.com/aristath/reportagg/internal/logging"
)

// Runner executes command lines for build tasks.
type Runner struct {
	Processes *ProcessManager
	Env       []string // Extra environment, appended to the current process environment
	Logger    *slog.Logger
}

// NewRunner creates a runner tracking its commands in pm.
func NewRunner(pm *ProcessManager, logger *slog.Logger) *Runner {
	if pm == nil {
		pm = NewProcessManager()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{Processes: pm, Logger: logger}
}

// Run executes line with sh in dir. Output is logged at debug level.
func (r *Runner) Run(ctx context.Context, taskID, line, dir string) error {
	cmd := newCommand(ctx, line)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env, "REPORTAGG_TASK="+taskID)

	stdout, stderr, err := executeCommand(cmd, r.Processes)
	if len(stdout) > 0 {
		r.Logger.Debug("task output", "task", taskID, "stdout", string(stdout))
	}
	if len(stderr) > 0 {
		r.Logger.Debug("task error output", "task", taskID, "stderr", string(stderr))
	}
	return err
}
