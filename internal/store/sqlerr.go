package store

import "strings"

// isUniqueViolation reports whether err comes from a UNIQUE constraint
// failure. modernc.org/sqlite doesn't export a typed constraint-kind
// the way lib/pq does, so this matches on the driver's message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
