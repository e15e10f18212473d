package process

import "errors"

var (
	// ErrNoBinary is returned when Config.Binary is empty.
	ErrNoBinary = errors.New("process: binary is required")

	// ErrStartFailed wraps failures to launch the command.
	ErrStartFailed = errors.New("process: start failed")
)
