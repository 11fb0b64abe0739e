package journal

import "github.com/google/uuid"

// DailyEntry is one check-in, keyed by calendar date. Optional fields are
// nil when not provided and serialise as null.
type DailyEntry struct {
	ID        string   `json:"id"`
	Date      string   `json:"date"`
	Mood      *float64 `json:"mood"`
	Energy    *float64 `json:"energy"`
	Highlight *string  `json:"highlight"`
	Gratitude *string  `json:"gratitude"`
	CreatedAt int64    `json:"createdAt"` // ms since epoch
	UpdatedAt int64    `json:"updatedAt"` // ms since epoch
}

// NewEntry returns an empty entry for date with a fresh id and both
// timestamps set to the clock's current time.
func NewEntry(date string, clock Clock) DailyEntry {
	if clock == nil {
		clock = realClock{}
	}
	now := millis(clock.Now())
	return DailyEntry{
		ID:        uuid.New().String(),
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Derived holds the views computed from the entry collection.
type Derived struct {
	Today    *DailyEntry `json:"today"`
	HasToday bool        `json:"hasToday"`
	Streak   int         `json:"streak"`
	Date     string      `json:"date"` // local calendar date the views were computed for
}

func cloneEntries(in []DailyEntry) []DailyEntry {
	out := make([]DailyEntry, len(in))
	copy(out, in)
	return out
}
