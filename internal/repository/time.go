package repository

import "time"

// Timestamp precisions of the stores that cannot keep nanoseconds.
const (
	MongoTimePrecision    = time.Millisecond
	PostgresTimePrecision = time.Microsecond
)

// CeilTime rounds t up to a multiple of precision. A timestamp stored this way
// never reads back earlier than the instant it was taken.
func CeilTime(t time.Time, precision time.Duration) time.Time {
	truncated := t.Truncate(precision)
	if truncated.Equal(t) {
		return truncated
	}
	return truncated.Add(precision)
}
