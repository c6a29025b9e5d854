package localparse

import (
	"encoding/json"
	"io"
	"strings"
)

// ParseJSON succeeds only if the first non-space character is '{' or '['
// and strict JSON decoding yields a value.
func ParseJSON(input string) (ok bool, value any) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return false, nil
	}
	switch trimmed[0] {
	case '{', '[':
	default:
		return false, nil
	}

	var v any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(&v); err != nil {
		return false, nil
	}
	// Reject trailing garbage after the first JSON value.
	if _, err := dec.Token(); err != io.EOF {
		return false, nil
	}
	return true, v
}
