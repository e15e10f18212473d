// womgrctl drives a single device from the command line without the
// service: wake it, ping it, restart or shut it down, and add or remove its
// dashboard card.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/womgr-core/internal/device"
)

// Version information - set at build time via ldflags
var version = "dev"

// env carries the pieces tests replace.
type env struct {
	out      io.Writer
	executor device.Executor
	dialer   device.Dialer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&env{out: os.Stdout}).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := guidance(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "womgrctl",
		Short: "Wake-on-LAN device control",
		Long: `womgrctl acts on one device identified by its MAC, IP and OS.

Devices are registered in a throwaway local registry for the duration of
the command, so nothing here touches a running womgr service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(e.out)

	df := &deviceFlags{}
	df.bind(root)

	root.AddCommand(
		newWakeCmd(e, df),
		newPingCmd(e, df),
		newSystemCmd(e, df, device.ActionRestart),
		newSystemCmd(e, df, device.ActionShutdown),
		newCommandsCmd(e, df),
		newDashboardCmd(e, df),
	)
	return root
}

// guidance returns a follow-up hint for errors the user can fix.
func guidance(err error) string {
	switch {
	case errors.Is(err, device.ErrCommandNotFound):
		return "The system command is not installed on this host. Install the package that provides " +
			"reboot/shutdown (systemd-sysv or procps on Debian), or check PATH when running under sudo."
	case errors.Is(err, device.ErrLaunchFailed):
		return "The command was found but could not start. With --sudo, allow it without a password in sudoers."
	case errors.Is(err, device.ErrInvalidAddress):
		return "MAC addresses look like AA:BB:CC:DD:EE:FF; IP must be a literal IPv4 or IPv6 address."
	}
	return ""
}
