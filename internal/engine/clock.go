package engine

import "time"

// JST is the timezone music and chart rows are stamped in, matching the
// upstream site's publication timezone. Alias and meta rows use UTC.
var JST = time.FixedZone("JST", 9*60*60)

// Clock supplies the timestamps a build stamps into the database. Injecting
// it keeps runs reproducible in tests; production uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used for tests and replayed
// builds.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

// jstISO renders t as ISO 8601 in JST with offset suffix.
func jstISO(t time.Time) string {
	return t.In(JST).Format("2006-01-02T15:04:05.999999-07:00")
}

// utcISO renders t as ISO 8601 UTC with Z suffix.
func utcISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z")
}
