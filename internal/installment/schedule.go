// Package installment generates debt installment plans and allocates
// payments across them. All amounts are int64 minor currency units so sums
// reconcile exactly.
package installment

import (
	"fmt"
	"sort"
	"time"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/store"
)

const (
	MinCount = 2
	MaxCount = 12
)

// Schedule splits total into count entries due at start + k*period. Entries
// 1..count-1 carry ceil(total/count); the final entry takes the exact
// remainder, so the entries always sum to total. The remainder must never
// land on the first entry: that would change the early cash-flow expectation
// communicated to the customer.
func Schedule(total int64, count int, frequency string, start time.Time) ([]domain.Installment, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", store.ErrValidation)
	}
	if count < MinCount || count > MaxCount {
		return nil, fmt.Errorf("%w: installment count must be between %d and %d", store.ErrValidation, MinCount, MaxCount)
	}
	if !validFrequency(frequency) {
		return nil, fmt.Errorf("%w: unknown frequency %q", store.ErrValidation, frequency)
	}

	per := (total + int64(count) - 1) / int64(count)
	last := total - per*int64(count-1)
	if last <= 0 {
		return nil, fmt.Errorf("%w: total %d too small for %d installments", store.ErrValidation, total, count)
	}

	entries := make([]domain.Installment, count)
	for k := 0; k < count; k++ {
		amount := per
		if k == count-1 {
			amount = last
		}
		entries[k] = domain.Installment{
			Number:  k + 1,
			DueDate: addPeriod(start, frequency, k),
			Amount:  amount,
		}
	}
	return entries, nil
}

// Allocate applies amount to the earliest pending installments first. A
// payment may fully cover one entry and spill into the next, or partially
// cover one and leave a residual. The input slice is not modified.
func Allocate(entries []domain.Installment, amount int64, at time.Time) []domain.Installment {
	out := make([]domain.Installment, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Number < out[j].Number
	})

	remaining := amount
	for i := range out {
		if remaining <= 0 {
			break
		}
		pending := out[i].Amount - out[i].Paid
		if pending <= 0 {
			continue
		}
		applied := pending
		if applied > remaining {
			applied = remaining
		}
		out[i].Paid += applied
		remaining -= applied
		if out[i].Paid == out[i].Amount {
			paidAt := at
			out[i].PaidAt = &paidAt
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func addPeriod(start time.Time, frequency string, k int) time.Time {
	switch frequency {
	case domain.FrequencyWeekly:
		return start.AddDate(0, 0, 7*k)
	case domain.FrequencyBiweekly:
		return start.AddDate(0, 0, 14*k)
	default:
		return start.AddDate(0, k, 0)
	}
}

func validFrequency(frequency string) bool {
	switch frequency {
	case domain.FrequencyWeekly, domain.FrequencyBiweekly, domain.FrequencyMonthly:
		return true
	}
	return false
}
