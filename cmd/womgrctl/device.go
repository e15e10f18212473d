package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
	"github.com/nerrad567/womgr-core/internal/infrastructure/logging"
)

// errOffline is returned by ping so the exit status reflects reachability.
var errOffline = errors.New("device did not answer")

// pollInterval is how often a launched system command is checked.
const pollInterval = 100 * time.Millisecond

// deviceFlags identifies the device every subcommand acts on.
type deviceFlags struct {
	name      string
	mac       string
	ip        string
	os        string
	broadcast string
	port      int
	timeout   time.Duration
	wait      time.Duration
	sudo      bool
	verbose   bool
}

func (f *deviceFlags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.name, "name", "womgrctl", "device name")
	pf.StringVar(&f.mac, "mac", "", "device MAC address")
	pf.StringVar(&f.ip, "ip", "", "device IP address")
	pf.StringVar(&f.os, "os", string(device.OSLinux), "device OS (linux or windows)")
	pf.StringVar(&f.broadcast, "broadcast", "255.255.255.255", "magic packet destination")
	pf.IntVar(&f.port, "port", 9, "magic packet UDP port")
	pf.DurationVar(&f.timeout, "timeout", 2*time.Second, "ping timeout")
	pf.DurationVar(&f.wait, "wait", 30*time.Second, "how long restart/shutdown waits for the command to exit")
	pf.BoolVar(&f.sudo, "sudo", false, "prefix restart/shutdown with sudo")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log to stderr")
}

func (f *deviceFlags) logger() *logging.Logger {
	level := "error"
	if f.verbose {
		level = "debug"
	}
	return logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stderr"}, version)
}

// open registers the device in a fresh registry. The caller closes the
// registry, which stops anything the device launched.
func (f *deviceFlags) open(ctx context.Context, e *env, dashboardPath string) (*device.Registry, *device.Record, error) {
	if f.mac == "" || f.ip == "" {
		return nil, nil, fmt.Errorf("--mac and --ip are required")
	}
	registry := device.NewRegistry(device.Options{
		Executor:     e.executor,
		Dialer:       e.dialer,
		Wake:         device.WakeTarget{Broadcast: f.broadcast, Port: f.port},
		ProbeTimeout: f.timeout,
		RemovalGrace: f.wait,
		UseSudo:      f.sudo,
	})
	registry.SetLogger(f.logger().Component("device"))

	rec, err := registry.Register(ctx, device.Params{
		Name:          f.name,
		MAC:           f.mac,
		IP:            f.ip,
		OS:            f.os,
		DashboardPath: dashboardPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return registry, rec, nil
}

// withDevice runs fn against the registered device and removes it after.
func withDevice(cmd *cobra.Command, e *env, f *deviceFlags, fn func(context.Context, *device.Record) error) error {
	ctx := cmd.Context()
	registry, rec, err := f.open(ctx, e, "")
	if err != nil {
		return err
	}
	defer registry.Close(context.Background()) //nolint:errcheck // nothing left to report

	return fn(ctx, rec)
}

func newWakeCmd(e *env, f *deviceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "Send a magic packet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDevice(cmd, e, f, func(ctx context.Context, rec *device.Record) error {
				if err := rec.Wake().TurnOn(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "magic packet sent to %s via %s:%d\n", rec.MAC, f.broadcast, f.port)
				return nil
			})
		},
	}
}

func newPingCmd(e *env, f *deviceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the device answers ping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDevice(cmd, e, f, func(ctx context.Context, rec *device.Record) error {
				if !rec.Probe().Probe(ctx) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is offline\n", rec.Name, rec.IP)
					return errOffline
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is online\n", rec.Name, rec.IP)
				return nil
			})
		},
	}
}

func newSystemCmd(e *env, f *deviceFlags, action device.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action),
		Short: fmt.Sprintf("Run the %s command for the device's OS", action),
		Long: fmt.Sprintf(`Launch the %s command selected by --os on this host.

The command waits up to --wait for it to exit; a command still running after
that is stopped.`, action),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDevice(cmd, e, f, func(ctx context.Context, rec *device.Record) error {
				sys := rec.System()
				if err := sys.Do(ctx, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s launched for %s\n", action, rec.Name)
				return waitExit(ctx, sys, f.wait)
			})
		},
	}
}

// waitExit polls until the launched command exits, ctx is done or wait
// elapses.
func waitExit(ctx context.Context, sys *device.SystemSwitch, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for sys.Running() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("command still running after %s", wait)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func newCommandsCmd(e *env, f *deviceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Report which system commands resolve on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDevice(cmd, e, f, func(_ context.Context, rec *device.Record) error {
				cmds, err := rec.System().AvailableCommands()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "restart:  %s\n", availability(cmds.Restart))
				fmt.Fprintf(out, "shutdown: %s\n", availability(cmds.Shutdown))
				if !cmds.Restart || !cmds.Shutdown {
					return fmt.Errorf("%w for %s", device.ErrCommandNotFound, rec.OS)
				}
				return nil
			})
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "missing"
}
