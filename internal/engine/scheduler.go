package engine

import "time"

// Due reports whether a check is due at now. A check that has never run
// is always due; otherwise it becomes due once the declared interval has
// fully elapsed. The boundary itself counts as due.
func Due(lastRun time.Time, interval time.Duration, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= interval
}
