/*
time.go - Date arithmetic for recurring expenses and ledger filters

PURPOSE:
  NextRun computes the next due date of a recurring template. Monthly
  recurrence uses time.AddDate, so a template due on Jan 31 next runs on
  Mar 3 (Mar 2 in leap years): the day overflows into the following month
  instead of being clamped.

SEE ALSO:
  - recurrence.go: Advances templates with NextRun
  - ledger.go: DateRange filtering
*/
package engine

import "time"

// NextRun returns from advanced by one interval.
func NextRun(interval Interval, from time.Time) (time.Time, error) {
	switch interval {
	case IntervalWeekly:
		return from.AddDate(0, 0, 7), nil
	case IntervalMonthly:
		return from.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, ErrInvalidInterval
	}
}

// DateRange is an inclusive, optionally open-ended interval.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// EndOfDay returns the last instant of t's day, for inclusive end dates.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
