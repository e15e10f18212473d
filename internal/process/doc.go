// Package process launches detached external commands and keeps a handle to
// them for later teardown.
//
// It is used for restart and shutdown commands, which must return to the
// caller as soon as the command is running. The handle lets the owner check
// whether the command is still alive and stop it with a grace period.
//
// Features:
//   - Each command runs in its own process group (POSIX) so the whole tree
//     can be signalled
//   - Stop sends a polite termination signal, waits up to the grace period,
//     then force-kills
//   - stdout/stderr are forwarded to the logger at debug level
//
// Example usage:
//
//	h, err := process.Spawn(process.Config{
//	    Name:   "restart",
//	    Binary: "/usr/bin/sudo",
//	    Args:   []string{"/usr/sbin/reboot"},
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer h.Stop(5 * time.Second)
package process
