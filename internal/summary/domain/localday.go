package domain

import "time"

// LocalDay maps a stored UTC instant onto the calendar day it falls on in
// loc. This is presentation only: range queries always run on the UTC
// instants themselves, and the conversion is applied to the results.
func LocalDay(instant time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return instant.In(loc).Format("2006-01-02")
}

// MonthBounds returns the UTC instant range [start, end) covering the
// calendar month named by "2006-01".
func MonthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	start = start.UTC()
	return start, start.AddDate(0, 1, 0), nil
}
