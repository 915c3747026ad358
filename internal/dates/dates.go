// Package dates holds the calendar-day arithmetic the ledger depends on.
// Due-date comparisons are always done on calendar days, never instants.
package dates

import "time"

const DayKeyLayout = "2006-01-02"

func BeginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DayKey renders the calendar-day aggregation key for a sale instant.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

func DaysBetween(start, end time.Time) int {
	start = BeginningOfDay(start)
	end = BeginningOfDay(end)
	return int(end.Sub(start).Hours() / 24)
}

// OverdueOn reports whether a balance due on due is overdue as of now:
// strictly before the current calendar day. Due today is not overdue.
// This is recomputed on every read and never persisted.
func OverdueOn(due, now time.Time) bool {
	return BeginningOfDay(due).Before(BeginningOfDay(now))
}
