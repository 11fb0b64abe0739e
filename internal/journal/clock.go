package journal

import "time"

// DateLayout is the ISO 8601 calendar date format used for entry dates.
const DateLayout = "2006-01-02"

// Clock abstracts time for testability. The location of the returned
// time defines the local calendar date.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// LocalDate formats t as a calendar date in t's own location.
func LocalDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate reports whether s is a well-formed YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// addDays shifts a calendar date by n days. Invalid input is returned unchanged.
func addDays(date string, n int) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(DateLayout)
}

func millis(t time.Time) int64 { return t.UnixMilli() }
