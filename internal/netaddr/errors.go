package netaddr

import "errors"

// ErrInvalidAddress is returned for malformed MAC or IP input.
var ErrInvalidAddress = errors.New("netaddr: invalid address")
