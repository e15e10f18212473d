package device

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// maxNameLength bounds device names.
const maxNameLength = 255

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ParseOSType normalises an os type string. Matching is case-insensitive.
func ParseOSType(s string) (OSType, error) {
	os := OSType(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AllOSTypes(), os) {
		return os, nil
	}
	return "", fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedOS, s, AllOSTypes())
}

// GenerateID creates a new UUID for a record.
func GenerateID() string {
	return uuid.New().String()
}
