package netaddr

import "strings"

// fallbackSlug is used when a name has no alphanumeric characters.
const fallbackSlug = "unknown"

// Slugify lower-cases name and collapses every run of characters outside
// [a-z0-9] into a single underscore. Leading and trailing underscores are
// dropped.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pending := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}
