package common

import "time"

// FreshnessResults is how long an exported result file is reported as current.
const FreshnessResults = 24 * time.Hour

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
