package leave

import (
	"time"
)

// =============================================================================
// CALENDAR - Day counts and year windows
// =============================================================================

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalidf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

func YearStart(d time.Time) time.Time { return NewDate(d.Year(), time.January, 1) }
func YearEnd(d time.Time) time.Time   { return NewDate(d.Year(), time.December, 31) }

const secondsPerDay = 24 * 60 * 60

// DaysBetween counts whole calendar days from start to end. Negative when
// end is before start. Works on Unix day numbers since time.Duration
// saturates at about 292 years.
func DaysBetween(start, end time.Time) int {
	return int((DateOf(end).Unix() - DateOf(start).Unix()) / secondsPerDay)
}

// InclusiveDays counts the days of [start, end], both ends included.
func InclusiveDays(start, end time.Time) (int, error) {
	n := DaysBetween(start, end) + 1
	if n <= 0 {
		return 0, invalidf("endDate must be >= startDate")
	}
	return n, nil
}
