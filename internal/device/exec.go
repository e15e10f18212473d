package device

import (
	"context"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nerrad567/womgr-core/internal/process"
)

// runWaitDelay bounds output draining after a probe command is cancelled.
const runWaitDelay = 500 * time.Millisecond

// Process is a launched external command.
type Process interface {
	Alive() bool
	Stop(grace time.Duration) error
}

// Executor resolves and runs external commands on behalf of the
// capabilities.
type Executor interface {
	// LookPath resolves file through the command search path.
	LookPath(file string) (string, error)

	// Run executes the command and waits for it. It must return once ctx
	// is done even if the command is still running.
	Run(ctx context.Context, name string, args ...string) error

	// Start launches the command detached and returns immediately.
	Start(name string, args ...string) (Process, error)
}

// OSExecutor is the Executor backed by os/exec.
type OSExecutor struct {
	logger Logger
}

// NewOSExecutor creates an executor. Output of launched commands is logged
// at debug level.
func NewOSExecutor(logger Logger) *OSExecutor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &OSExecutor{logger: logger}
}

// LookPath implements Executor.
func (e *OSExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run implements Executor.
func (e *OSExecutor) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // name resolved via LookPath
	cmd.WaitDelay = runWaitDelay
	return cmd.Run()
}

// Start implements Executor.
func (e *OSExecutor) Start(name string, args ...string) (Process, error) {
	h, err := process.Spawn(process.Config{
		Name:   filepath.Base(name),
		Binary: name,
		Args:   args,
	}, e.logger)
	if err != nil {
		return nil, err
	}
	return h, nil
}
