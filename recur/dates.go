/*
dates.go - Calendar date type and next-occurrence arithmetic

PURPOSE:
  Pure date math for the scheduler. The hard requirement is month/year
  addition with end-of-month clamping: Jan 31 + 1 month must land on the
  last day of February, not roll over into March the way naive AddDate
  arithmetic does.

CLAMPING IS PERMANENT:
  Each occurrence is computed from the previous (possibly clamped) one, so
  a monthly rule starting Jan 31 yields Jan 31, Feb 29, Mar 29, ... and
  never snaps back to day 31 in a longer month.

SEE ALSO:
  - generator.go: consumes NextOccurrence to advance the rule cursor
*/
package recur

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar point
// =============================================================================

// Date is a calendar day, stored as UTC midnight. Occurrence dates,
// rule cursors, and idempotency keys are all day-granular.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t.UTC()}, nil
}

// =============================================================================
// NEXT OCCURRENCE - The DateArithmetic contract
// =============================================================================

// NextOccurrence returns the occurrence that follows d for the given
// frequency and interval ("every N units"). Monthly and yearly steps clamp
// an overflowing day-of-month to the last day of the target month:
//
//	2024-01-31 monthly/1 -> 2024-02-29
//	2023-01-31 monthly/1 -> 2023-02-28
//	2024-02-29 yearly/1  -> 2025-02-28
func NextOccurrence(d Date, freq Frequency, interval int) (Date, error) {
	if interval < 1 {
		return Date{}, ErrInvalidInterval
	}
	switch freq {
	case FreqDaily:
		return d.AddDays(interval), nil
	case FreqWeekly:
		return d.AddDays(interval * 7), nil
	case FreqMonthly:
		return addMonthsClamped(d, interval), nil
	case FreqYearly:
		return addYearsClamped(d, interval), nil
	default:
		return Date{}, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, freq)
	}
}

func addMonthsClamped(d Date, n int) Date {
	// Month arithmetic on the zero-based month index keeps year rollover
	// out of the clamping logic.
	months := d.Year()*12 + int(d.Month()) - 1 + n
	year, month := months/12, time.Month(months%12+1)
	day := d.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

func addYearsClamped(d Date, n int) Date {
	year := d.Year() + n
	day := d.Day()
	if last := daysInMonth(year, d.Month()); day > last {
		day = last
	}
	return NewDate(year, d.Month(), day)
}

// daysInMonth returns the number of days in a month. Day 0 of the following
// month normalizes to the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
