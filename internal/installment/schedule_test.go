package installment

import (
	"errors"
	"testing"
	"time"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScheduleSplitsExactly(t *testing.T) {
	start := date(2025, time.January, 1)

	for count := MinCount; count <= MaxCount; count++ {
		entries, err := Schedule(10000, count, domain.FrequencyWeekly, start)
		if err != nil {
			t.Fatalf("schedule with %d entries failed: %v", count, err)
		}
		if len(entries) != count {
			t.Fatalf("expected %d entries, got %d", count, len(entries))
		}
		sum := int64(0)
		for _, entry := range entries {
			sum += entry.Amount
		}
		if sum != 10000 {
			t.Fatalf("entries for count %d sum to %d, want 10000", count, sum)
		}
	}
}

func TestScheduleRemainderOnFinalEntry(t *testing.T) {
	entries, err := Schedule(10000, 3, domain.FrequencyWeekly, date(2025, time.January, 1))
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	if entries[0].Amount != 3334 || entries[1].Amount != 3334 || entries[2].Amount != 3332 {
		t.Fatalf("expected 3334/3334/3332, got %d/%d/%d", entries[0].Amount, entries[1].Amount, entries[2].Amount)
	}
}

func TestScheduleWeeklyDueDates(t *testing.T) {
	entries, err := Schedule(10000, 3, domain.FrequencyWeekly, date(2025, time.January, 1))
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	want := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.January, 8),
		date(2025, time.January, 15),
	}
	for i, entry := range entries {
		if !entry.DueDate.Equal(want[i]) {
			t.Fatalf("entry %d due %s, want %s", entry.Number, entry.DueDate, want[i])
		}
	}
}

func TestScheduleMonthlyDueDates(t *testing.T) {
	entries, err := Schedule(9000, 3, domain.FrequencyMonthly, date(2025, time.January, 31))
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if !entries[1].DueDate.Equal(date(2025, time.March, 3)) {
		// AddDate normalizes Jan 31 + 1 month past February's end.
		t.Fatalf("entry 2 due %s", entries[1].DueDate)
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	cases := []struct {
		name      string
		total     int64
		count     int
		frequency string
	}{
		{"zero total", 0, 3, domain.FrequencyWeekly},
		{"count too low", 10000, 1, domain.FrequencyWeekly},
		{"count too high", 10000, 13, domain.FrequencyWeekly},
		{"unknown frequency", 10000, 3, "daily"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Schedule(tc.total, tc.count, tc.frequency, date(2025, time.January, 1))
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAllocateOldestFirstWithSpill(t *testing.T) {
	entries, err := Schedule(10000, 3, domain.FrequencyWeekly, date(2025, time.January, 1))
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	paidAt := date(2025, time.January, 2)
	out := Allocate(entries, 4000, paidAt)

	if out[0].Paid != 3334 || out[0].PaidAt == nil {
		t.Fatalf("entry 1 should be fully covered, got paid=%d", out[0].Paid)
	}
	if out[1].Paid != 666 || out[1].PaidAt != nil {
		t.Fatalf("entry 2 should carry the 666 residual, got paid=%d", out[1].Paid)
	}
	if out[2].Paid != 0 {
		t.Fatalf("entry 3 should be untouched, got paid=%d", out[2].Paid)
	}

	// Original slice must not change.
	if entries[0].Paid != 0 {
		t.Fatalf("input slice was mutated")
	}
}

func TestAllocateCompletesRemainder(t *testing.T) {
	entries, err := Schedule(10000, 3, domain.FrequencyWeekly, date(2025, time.January, 1))
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	out := Allocate(entries, 4000, date(2025, time.January, 2))
	out = Allocate(out, 6000, date(2025, time.January, 20))

	for _, entry := range out {
		if entry.Paid != entry.Amount {
			t.Fatalf("entry %d not fully paid: %d/%d", entry.Number, entry.Paid, entry.Amount)
		}
		if entry.PaidAt == nil {
			t.Fatalf("entry %d missing paid_at", entry.Number)
		}
	}
}
