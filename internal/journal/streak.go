package journal

import (
	"sort"
	"time"
)

// Streak counts consecutive calendar days with an entry, walking back from
// today, or from yesterday when today has no entry yet.
//
// The zero gate looks only at the most recent date by sort order. A
// future-dated entry therefore sorts first and, being neither today nor
// yesterday, yields 0 even when today and yesterday are both logged.
func Streak(dates []string, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	sorted := make([]string, len(dates))
	copy(sorted, dates)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	today := LocalDate(now)
	yesterday := addDays(today, -1)

	if sorted[0] != today && sorted[0] != yesterday {
		return 0
	}

	expected := yesterday
	if sorted[0] == today {
		expected = today
	}

	count := 0
	for _, d := range sorted {
		if d == expected {
			count++
			expected = addDays(expected, -1)
		} else if d < expected {
			break
		}
	}
	return count
}

func entryDates(entries []DailyEntry) []string {
	dates := make([]string, len(entries))
	for i, e := range entries {
		dates[i] = e.Date
	}
	return dates
}
