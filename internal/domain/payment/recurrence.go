package payment

import "time"

// Frequency is the recurrence period of a RECURRING payment.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// NextOccurrence adds exactly one calendar period of freq to base.
// Months and years are clamped to the last valid day of the target month.
// Unknown frequencies fall back to one day.
func NextOccurrence(base time.Time, freq Frequency) time.Time {
	switch freq {
	case FrequencyWeekly:
		return base.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(base, 1)
	case FrequencyYearly:
		return addMonthsClamped(base, 12)
	default:
		return base.AddDate(0, 0, 1)
	}
}

// addMonthsClamped is AddDate(0, months, 0) without the normalization overflow
// (Jan 31 + 1 month is Feb 28/29, not Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
