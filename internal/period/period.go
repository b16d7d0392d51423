// Package period maps recurring-bill frequencies onto canonical
// billing periods and due dates.
//
// Period keys are stable strings used as the idempotency anchor for
// instance generation: "YYYY-MM" for monthly, "YYYY-Qn" for quarterly
// and "YYYY" for annual definitions. Resolution is pure and
// deterministic.
package period

import (
	"fmt"
	"time"

	"expense-reconciliation-engine/internal/models"
)

// Period identifies one billing cycle and its due date
type Period struct {
	Key     string
	DueDate time.Time
}

// Resolve computes the effective period for a frequency at a target
// (year, month). The second return value is false when the frequency
// does not bill in that month: quarterly definitions only bill in
// January, April, July and October; annual definitions only in their
// configured due month.
//
// The due date is (year, month, dueDay) with the day clamped to the
// last valid day of the month.
func Resolve(freq models.Frequency, year int, month time.Month, dueDay, dueMonth int) (Period, bool) {
	if dueMonth < 1 || dueMonth > 12 {
		dueMonth = 1
	}

	var key string
	switch freq {
	case models.FrequencyMonthly:
		key = fmt.Sprintf("%04d-%02d", year, int(month))
	case models.FrequencyQuarterly:
		switch month {
		case time.January, time.April, time.July, time.October:
			key = fmt.Sprintf("%04d-Q%d", year, (int(month)-1)/3+1)
		default:
			return Period{}, false
		}
	case models.FrequencyAnnual:
		if int(month) != dueMonth {
			return Period{}, false
		}
		key = fmt.Sprintf("%04d", year)
	default:
		return Period{}, false
	}

	return Period{
		Key:     key,
		DueDate: dueDate(year, month, dueDay),
	}, true
}

// Window is an inclusive range of calendar months
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window spanning monthsBack before and
// monthsForward after the reference month.
func NewWindow(reference time.Time, monthsBack, monthsForward int) Window {
	start := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -monthsBack, 0)
	end := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, monthsForward, 0)
	return Window{Start: start, End: end}
}

// PeriodsInWindow resolves every applicable period for a frequency
// across the months of a window, in chronological order.
func PeriodsInWindow(freq models.Frequency, w Window, dueDay, dueMonth int) []Period {
	var periods []Period

	for cursor := w.Start; !cursor.After(w.End); cursor = cursor.AddDate(0, 1, 0) {
		if p, ok := Resolve(freq, cursor.Year(), cursor.Month(), dueDay, dueMonth); ok {
			periods = append(periods, p)
		}
	}

	return periods
}

// dueDate builds the due date for a period, clamping the day to the
// last valid day of the month (e.g. due day 31 in February).
func dueDate(year int, month time.Month, day int) time.Time {
	if day < 1 {
		day = 1
	}
	last := lastDayOfMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// lastDayOfMonth returns the number of days in the month
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
