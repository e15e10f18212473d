package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultRemovalGrace is used when Options.RemovalGrace is zero.
const DefaultRemovalGrace = 5 * time.Second

// Action is a system command.
type Action string

const (
	ActionRestart  Action = "restart"
	ActionShutdown Action = "shutdown"
)

// Executables resolved for system commands.
const (
	rebootBinary   = "reboot"
	shutdownBinary = "shutdown"
	sudoBinary     = "sudo"
)

// SystemSwitch launches restart and shutdown commands for one device and
// owns the handle of the most recent launch.
type SystemSwitch struct {
	entityID string
	os       OSType
	exec     Executor
	useSudo  bool
	grace    time.Duration
	logger   Logger

	mu     sync.Mutex
	proc   Process
	closed bool
}

// NewSystemSwitch creates a system-command capability.
func NewSystemSwitch(entityID string, os OSType, exec Executor, useSudo bool, grace time.Duration, logger Logger) *SystemSwitch {
	if grace <= 0 {
		grace = DefaultRemovalGrace
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &SystemSwitch{
		entityID: entityID,
		os:       os,
		exec:     exec,
		useSudo:  useSudo,
		grace:    grace,
		logger:   logger,
	}
}

// EntityID returns the capability identifier.
func (s *SystemSwitch) EntityID() string {
	return s.entityID
}

// Restart launches the platform restart command.
func (s *SystemSwitch) Restart(ctx context.Context) error {
	return s.launch(ctx, ActionRestart)
}

// Shutdown launches the platform shutdown command.
func (s *SystemSwitch) Shutdown(ctx context.Context) error {
	return s.launch(ctx, ActionShutdown)
}

// Do runs the named action. Unknown actions are rejected before anything
// is resolved.
func (s *SystemSwitch) Do(ctx context.Context, action Action) error {
	return s.launch(ctx, action)
}

// CommandLine resolves the executable and arguments for action without
// running anything. It fails with ErrCommandNotFound when the executable is
// not on the search path and ErrUnsupportedOS for an unknown os type.
func (s *SystemSwitch) CommandLine(action Action) (string, []string, error) {
	if action != ActionRestart && action != ActionShutdown {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	var (
		binary string
		args   []string
	)
	switch s.os {
	case OSLinux:
		switch action {
		case ActionRestart:
			binary = rebootBinary
		case ActionShutdown:
			binary, args = shutdownBinary, []string{"-h", "now"}
		}
	case OSWindows:
		binary = shutdownBinary
		switch action {
		case ActionRestart:
			args = []string{"/r", "/t", "0"}
		case ActionShutdown:
			args = []string{"/s", "/t", "0"}
		}
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedOS, s.os)
	}
	path, err := s.exec.LookPath(binary)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrCommandNotFound, binary)
	}

	if s.sudo() {
		if _, err := s.exec.LookPath(sudoBinary); err != nil {
			return "", nil, fmt.Errorf("%w: %s", ErrCommandNotFound, sudoBinary)
		}
		return sudoBinary, append([]string{path}, args...), nil
	}
	return path, args, nil
}

// launch starts the command detached. Any previous command still running is
// stopped first so at most one handle is held.
func (s *SystemSwitch) launch(ctx context.Context, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, args, err := s.CommandLine(action)
	if err != nil {
		s.logger.Warn("system command unavailable", "entity", s.entityID, "action", action, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrRemoved
	}

	if s.proc != nil {
		if s.proc.Alive() {
			s.logger.Info("superseding running system command", "entity", s.entityID, "action", action)
			if err := s.proc.Stop(s.grace); err != nil {
				s.logger.Warn("stopping previous system command", "entity", s.entityID, "error", err)
			}
		}
		s.proc = nil
	}

	proc, err := s.exec.Start(name, args...)
	if err != nil {
		s.logger.Error("system command launch failed", "entity", s.entityID, "action", action, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrLaunchFailed, action, err)
	}
	s.proc = proc

	s.logger.Info("system command launched", "entity", s.entityID, "action", action, "command", name, "args", args)
	return nil
}

// sudo reports whether launches go through sudo.
func (s *SystemSwitch) sudo() bool {
	return s.os == OSLinux && s.useSudo
}

// AvailableCommands reports which commands resolve on the search path. When
// launches go through sudo, a missing sudo makes every command unavailable.
// It executes nothing.
func (s *SystemSwitch) AvailableCommands() (Commands, error) {
	cmds, err := AvailableCommands(s.os, s.exec)
	if err != nil {
		return cmds, err
	}
	if s.sudo() {
		if _, err := s.exec.LookPath(sudoBinary); err != nil {
			return Commands{}, nil
		}
	}
	return cmds, nil
}

// AvailableCommands reports which system commands for osType resolve
// through exec.
func AvailableCommands(osType OSType, exec Executor) (Commands, error) {
	found := func(name string) bool {
		_, err := exec.LookPath(name)
		return err == nil
	}
	switch osType {
	case OSLinux:
		return Commands{Restart: found(rebootBinary), Shutdown: found(shutdownBinary)}, nil
	case OSWindows:
		ok := found(shutdownBinary)
		return Commands{Restart: ok, Shutdown: ok}, nil
	}
	return Commands{}, fmt.Errorf("%w: %q", ErrUnsupportedOS, osType)
}

// Running reports whether the last launched command is still alive.
func (s *SystemSwitch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && s.proc.Alive()
}

// Close stops any running command, waiting up to the grace period before
// it is killed, and refuses further launches. Safe to call more than once.
func (s *SystemSwitch) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc == nil || !proc.Alive() {
		return nil
	}
	s.logger.Info("terminating system command", "entity", s.entityID, "grace", s.grace)
	return proc.Stop(s.grace)
}
