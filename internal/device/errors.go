package device

import (
	"errors"

	"github.com/nerrad567/womgr-core/internal/netaddr"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrCommandNotFound) {
//	    // tell the user which tool to install
//	}
var (
	// ErrInvalidAddress is returned for a malformed MAC or IP.
	ErrInvalidAddress = netaddr.ErrInvalidAddress

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrDuplicateName is returned when the name is already registered.
	ErrDuplicateName = errors.New("device: duplicate name")

	// ErrDuplicateMAC is returned when the MAC is already registered.
	ErrDuplicateMAC = errors.New("device: duplicate MAC address")

	// ErrDuplicateIP is returned when the IP is already registered.
	ErrDuplicateIP = errors.New("device: duplicate IP address")

	// ErrNotFound is returned when no device has the requested name.
	ErrNotFound = errors.New("device: not found")

	// ErrUnsupportedOS is returned for an os type outside linux and windows.
	ErrUnsupportedOS = errors.New("device: unsupported os type")

	// ErrCommandNotFound is returned when a required executable is not on PATH.
	ErrCommandNotFound = errors.New("device: command not found")

	// ErrLaunchFailed is returned when a resolved command could not be started.
	ErrLaunchFailed = errors.New("device: command launch failed")

	// ErrWakeFailed is returned when the magic packet could not be sent.
	ErrWakeFailed = errors.New("device: wake packet not sent")

	// ErrUnknownAction is returned for a system action other than restart
	// or shutdown.
	ErrUnknownAction = errors.New("device: unknown action")

	// ErrRemoved is returned when acting on a record that has been removed.
	ErrRemoved = errors.New("device: removed")
)
