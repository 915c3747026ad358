package dates

import (
	"testing"
	"time"
)

func TestOverdueOnCalendarDayCompare(t *testing.T) {
	now := time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		due  time.Time
		want bool
	}{
		{"yesterday", now.AddDate(0, 0, -1), true},
		{"today earlier hour", time.Date(2025, time.June, 15, 1, 0, 0, 0, time.UTC), false},
		{"today later hour", time.Date(2025, time.June, 15, 23, 0, 0, 0, time.UTC), false},
		{"tomorrow", now.AddDate(0, 0, 1), false},
		{"last month", now.AddDate(0, -1, 0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OverdueOn(tc.due, now); got != tc.want {
				t.Fatalf("OverdueOn(%s, %s) = %v, want %v", tc.due, now, got, tc.want)
			}
		})
	}
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2025, time.June, 15, 23, 59, 59, 0, time.UTC)
	if got := DayKey(ts); got != "2025-06-15" {
		t.Fatalf("DayKey = %s", got)
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2025, time.June, 15, 23, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.June, 18, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(from, to); got != 3 {
		t.Fatalf("DaysBetween = %d, want 3", got)
	}
}
