package accrual

import "time"

// LastActivationDay is the second activation boundary of a month: the 30th,
// or the real last day of February.
func LastActivationDay(year int, month time.Month) int {
	if month == time.February {
		return time.Date(year, time.March, 0, 0, 0, 0, 0, time.UTC).Day()
	}
	return 30
}

// NextActivationDate batches rate changes onto the 15th and the last
// activation day of the month:
//
//	day < 15                 -> 15th of this month
//	15 <= day < last         -> last activation day of this month
//	day >= last              -> 15th of next month
//
// The result is midnight in loc.
func NextActivationDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()

	if d < 15 {
		return time.Date(y, m, 15, 0, 0, 0, 0, loc)
	}
	last := LastActivationDay(y, m)
	if d < last {
		return time.Date(y, m, last, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m+1, 15, 0, 0, 0, 0, loc)
}

// SameCalendarDay compares dates in loc
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// AddMonths shifts t by whole calendar months
func AddMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}
