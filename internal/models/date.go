package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in query strings
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of the same calendar day
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a "2006-01-02" string into a UTC calendar day
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// DaysInclusive returns the number of calendar days from start to end,
// counting both ends. It is zero or negative when end is before start.
func DaysInclusive(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours()/24) + 1
}

// AddDays returns the calendar day n days after t
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}
