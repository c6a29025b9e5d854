package localparse

import (
	"net/url"
	"strings"
)

// ParseQuery requires an '=' in the input and decodes it with standard form
// semantics. Dot characters in keys are normalized to underscore — this is
// documented behavior, not a bug.
func ParseQuery(input string) (ok bool, value map[string]any) {
	if !strings.Contains(input, "=") {
		return false, nil
	}

	values, err := url.ParseQuery(input)
	if err != nil {
		return false, nil
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		key := strings.ReplaceAll(k, ".", "_")
		if len(v) == 0 {
			out[key] = ""
			continue
		}
		out[key] = v[0]
	}
	return true, out
}
