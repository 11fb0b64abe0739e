package journal

import (
	"testing"
	"time"
)

func TestStreak(t *testing.T) {
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		dates []string
		want  int
	}{
		{"empty", nil, 0},
		{"today only", []string{"2024-03-10"}, 1},
		{"yesterday only", []string{"2024-03-09"}, 1},
		{"three days ending today", []string{"2024-03-08", "2024-03-10", "2024-03-09"}, 3},
		{"three days ending yesterday", []string{"2024-03-07", "2024-03-08", "2024-03-09"}, 3},
		{"gap breaks the run", []string{"2024-03-10", "2024-03-09", "2024-03-07"}, 2},
		{"last entry two days ago", []string{"2024-03-08", "2024-03-07"}, 0},
		{"duplicate dates skipped", []string{"2024-03-10", "2024-03-10", "2024-03-09"}, 2},
		{"month boundary", []string{"2024-03-01", "2024-02-29", "2024-02-28"}, 0},
		// The gate inspects only the most recent date, so a future entry
		// hides an otherwise valid streak.
		{"future date zeroes streak", []string{"2024-03-11", "2024-03-10", "2024-03-09"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Streak(tt.dates, now); got != tt.want {
				t.Errorf("Streak(%v) = %d, want %d", tt.dates, got, tt.want)
			}
		})
	}
}

func TestStreak_AcrossMonthAndLeapDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	dates := []string{"2024-03-01", "2024-02-29", "2024-02-28", "2024-02-26"}
	if got := Streak(dates, now); got != 3 {
		t.Errorf("Streak = %d, want 3", got)
	}
}

func TestStreak_UsesClockLocation(t *testing.T) {
	// 02:00 on the 11th in UTC+10 is still the 10th in UTC.
	loc := time.FixedZone("AEST", 10*60*60)
	now := time.Date(2024, 3, 11, 2, 0, 0, 0, loc)

	if got := Streak([]string{"2024-03-11"}, now); got != 1 {
		t.Errorf("local today: Streak = %d, want 1", got)
	}
	if got := Streak([]string{"2024-03-11"}, now.UTC()); got != 0 {
		t.Errorf("UTC view: Streak = %d, want 0", got)
	}
}

func TestStreak_DoesNotMutateInput(t *testing.T) {
	dates := []string{"2024-03-08", "2024-03-10", "2024-03-09"}
	Streak(dates, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if dates[0] != "2024-03-08" || dates[1] != "2024-03-10" {
		t.Errorf("input reordered: %v", dates)
	}
}
