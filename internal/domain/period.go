package domain

import "time"

// DayKey returns the stable calendar-day key for an instant. All day-scoped
// counters (card spending, key volume, key requests) share this key so a single
// clock read per operation keeps every field on the same day boundary.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SameCalendarDay reports whether two instants fall on the same UTC calendar day.
func SameCalendarDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b)
}

// ResetIfNewPeriod returns the counter unchanged while lastReset and now share a
// calendar day, and the zero value once the day has rolled over. It is the single
// lazy-reset primitive used by every day-scoped counter in the system.
func ResetIfNewPeriod[T any](counter, zero T, lastReset, now time.Time) T {
	if SameCalendarDay(lastReset, now) {
		return counter
	}
	return zero
}
