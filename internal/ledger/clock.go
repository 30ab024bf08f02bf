package ledger

import "time"

// Clock supplies edit timestamps. Coalescing compares these against the
// merge window, so tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
