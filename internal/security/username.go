package security

import "strings"

// NormalizeUsername lowercases a candidate username and strips every
// character outside [a-z0-9_-]. The result is the canonical login name;
// applying it twice yields the same string.
func NormalizeUsername(username string) string {
	lowered := strings.ToLower(strings.TrimSpace(username))
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
