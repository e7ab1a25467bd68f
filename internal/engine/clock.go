package engine

import "time"

// Clock supplies the evaluation timestamp. The engine itself never reads
// the wall clock; callers pass now explicitly to Evaluate, and services that
// drive the engine take a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time truncated to milliseconds, the
// precision timestamps are stored with.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
