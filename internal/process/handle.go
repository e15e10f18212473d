package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Status represents the current state of a launched process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusKilled  Status = "killed"
)

// waitDelay bounds how long Wait keeps copying output after the process
// exits, in case a grandchild still holds the pipes open.
const waitDelay = time.Second

// killWait bounds the wait for exit after a forced kill.
const killWait = 2 * time.Second

// Config describes a command to launch.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable to run. It is resolved through PATH when it
	// contains no path separator.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string
}

// Logger defines the logging interface for process handles.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handle tracks one launched process.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Stop may be called any number of times.
type Handle struct {
	config    Config
	logger    Logger
	cmd       *exec.Cmd
	startTime time.Time

	// done is closed once the process has been reaped.
	done chan struct{}

	mu     sync.RWMutex
	status Status
}

// Spawn starts the command and returns without waiting for it to finish.
// The process is not tied to any caller context: it keeps running until it
// exits on its own or Stop is called.
func Spawn(cfg Config, logger Logger) (*Handle, error) {
	if cfg.Binary == "" {
		return nil, ErrNoBinary
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // binary resolved by caller via LookPath
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = waitDelay

	h := &Handle{
		config: cfg,
		logger: logger,
		cmd:    cmd,
		done:   make(chan struct{}),
		status: StatusRunning,
	}
	cmd.Stdout = &outputWriter{h: h, stream: "stdout"}
	cmd.Stderr = &outputWriter{h: h, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, cfg.Name, err)
	}
	h.startTime = time.Now()

	logger.Info("process started",
		"name", cfg.Name,
		"binary", cfg.Binary,
		"args", cfg.Args,
		"pid", cmd.Process.Pid,
	)

	go h.wait()

	return h, nil
}

// wait reaps the process and records how it ended.
func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	if h.status == StatusRunning {
		h.status = StatusExited
	}
	h.mu.Unlock()

	ran := time.Since(h.startTime).Round(time.Millisecond)
	if err != nil {
		h.logger.Warn("process exited with error", "name", h.config.Name, "ran_for", ran, "error", err)
	} else {
		h.logger.Info("process exited", "name", h.config.Name, "ran_for", ran)
	}
	close(h.done)
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop asks the process to terminate and waits up to grace for it to exit.
// If it is still running after that the process group is killed. A process
// that survives the kill is logged and abandoned; Stop still returns nil so
// the caller can treat it as terminated.
func (h *Handle) Stop(grace time.Duration) error {
	if !h.Alive() {
		return nil
	}

	pid := h.cmd.Process.Pid
	h.logger.Info("stopping process", "name", h.config.Name, "pid", pid)

	if err := terminate(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("failed to send termination signal", "name", h.config.Name, "error", err)
	}

	select {
	case <-h.done:
		h.logger.Info("process stopped gracefully", "name", h.config.Name)
		return nil
	case <-time.After(grace):
		h.logger.Warn("graceful stop timeout, killing",
			"name", h.config.Name,
			"timeout", grace,
		)
	}

	h.mu.Lock()
	if h.status == StatusRunning {
		h.status = StatusKilled
	}
	h.mu.Unlock()

	if err := kill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %s: %w", h.config.Name, err)
	}

	select {
	case <-h.done:
		h.logger.Info("process killed", "name", h.config.Name)
	case <-time.After(killWait):
		h.logger.Error("process did not exit after kill", "name", h.config.Name, "pid", pid)
	}
	return nil
}

// Status returns the current status of the process.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// outputWriter forwards process output to the debug log.
type outputWriter struct {
	h      *Handle
	stream string
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.h.logger.Debug("process output",
		"name", w.h.config.Name,
		"stream", w.stream,
		"output", string(p),
	)
	return len(p), nil
}
