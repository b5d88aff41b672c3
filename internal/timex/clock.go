package timex

import "time"

// Clock abstracts time retrieval so TTL and backoff logic is deterministic
// in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// OrReal returns c, or RealClock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}

// UnixMilli converts t to milliseconds since the epoch, the unit persisted
// entries use for timestamps and TTLs.
func UnixMilli(t time.Time) int64 { return t.UnixMilli() }
