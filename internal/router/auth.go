package router

import "crypto/subtle"

// constantTimeEqual compares two bearer tokens without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
