package netaddr

import (
	"fmt"
	"net/netip"
	"strings"
)

// ParseIP validates an IPv4 or IPv6 literal. Host names are rejected.
func ParseIP(text string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(text))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, text)
	}
	return addr.Unmap(), nil
}
