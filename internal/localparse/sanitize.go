package localparse

import "strings"

// SanitizeKey replaces any character outside
// [A-Za-z0-9_.-] with '_', collapse runs of '_', strip leading/trailing '_',
// and substitute "key" if the result is empty.
func SanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if isAllowedKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	collapsed := collapseUnderscores(b.String())
	trimmed := strings.Trim(collapsed, "_")
	if trimmed == "" {
		return "key"
	}
	return trimmed
}

func isAllowedKeyRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
