package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// EntryStore owns the daily entry collection. State is loaded once by
// Init and every mutation is written through to Storage before the
// in-memory view changes and subscribers are notified.
//
// Subscriber callbacks run synchronously and in order. They may read from
// the store but must not mutate it.
type EntryStore struct {
	storage Storage
	clock   Clock
	logger  *slog.Logger

	mu      sync.Mutex // guards entries
	pubMu   sync.Mutex // serialises publication so observers see mutations in order
	entries []DailyEntry

	entrySubs   observers[[]DailyEntry]
	derivedSubs observers[Derived]
}

// NewEntryStore creates an empty store. A nil storage means no durable
// storage is available and NopStorage is used.
func NewEntryStore(storage Storage, clock Clock, logger *slog.Logger) *EntryStore {
	if storage == nil {
		storage = NopStorage{}
	}
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryStore{
		storage: storage,
		clock:   clock,
		logger:  logger,
		entries: []DailyEntry{},
	}
}

// Init loads the persisted collection. Read and parse failures are logged
// and leave the current state untouched.
func (s *EntryStore) Init() {
	raw, ok, err := s.storage.GetItem(KeyEntries)
	if err != nil {
		s.logger.Error("failed to read entries", "key", KeyEntries, "error", err)
		return
	}
	if !ok || raw == "" {
		return
	}

	var loaded []DailyEntry
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		s.logger.Error("failed to parse entries", "key", KeyEntries, "error", err)
		return
	}
	if loaded == nil {
		loaded = []DailyEntry{}
	}

	s.commit(loaded)
}

// Save replaces the whole collection.
func (s *EntryStore) Save(entries []DailyEntry) error {
	next := cloneEntries(entries)
	s.mu.Lock()
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries = next
	s.publishLocked()
	return nil
}

// AddOrUpdate upserts entry by date. An existing entry for the same date
// is replaced in place with UpdatedAt forced to now; otherwise entry is
// appended as given. Returns the stored entry.
func (s *EntryStore) AddOrUpdate(entry DailyEntry) (DailyEntry, error) {
	s.mu.Lock()

	next := cloneEntries(s.entries)
	idx := -1
	for i, e := range next {
		if e.Date == entry.Date {
			idx = i
			break
		}
	}
	if idx >= 0 {
		entry.UpdatedAt = millis(s.clock.Now())
		next[idx] = entry
	} else {
		next = append(next, entry)
	}

	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return DailyEntry{}, err
	}
	s.entries = next
	s.publishLocked()
	return entry, nil
}

// GetByDate returns the entry for date, if any.
func (s *EntryStore) GetByDate(date string) (DailyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findByDate(s.entries, date)
}

// All returns a copy of the collection in stored order.
func (s *EntryStore) All() []DailyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries)
}

// Today returns the entry for the clock's current local date, if any.
func (s *EntryStore) Today() (DailyEntry, bool) {
	return s.GetByDate(LocalDate(s.clock.Now()))
}

// Streak returns the current streak length.
func (s *EntryStore) Streak() int {
	s.mu.Lock()
	dates := entryDates(s.entries)
	s.mu.Unlock()
	return Streak(dates, s.clock.Now())
}

// Derived computes today's entry and the streak from current state.
func (s *EntryStore) Derived() Derived {
	s.mu.Lock()
	snapshot := cloneEntries(s.entries)
	s.mu.Unlock()
	return s.derive(snapshot)
}

// Subscribe registers fn for collection changes. fn receives the current
// collection immediately and again after every mutation.
func (s *EntryStore) Subscribe(fn func([]DailyEntry)) (unsubscribe func()) {
	snapshot := s.lockSnapshot()
	defer s.pubMu.Unlock()
	return s.entrySubs.subscribe(fn, snapshot)
}

// SubscribeDerived registers fn for derived view changes.
func (s *EntryStore) SubscribeDerived(fn func(Derived)) (unsubscribe func()) {
	snapshot := s.lockSnapshot()
	defer s.pubMu.Unlock()
	return s.derivedSubs.subscribe(fn, s.derive(snapshot))
}

// lockSnapshot copies the collection and returns with s.pubMu held. Locks
// are taken in the same order as publishLocked.
func (s *EntryStore) lockSnapshot() []DailyEntry {
	s.mu.Lock()
	snapshot := cloneEntries(s.entries)
	s.pubMu.Lock()
	s.mu.Unlock()
	return snapshot
}

func (s *EntryStore) persist(entries []DailyEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}
	if err := s.storage.SetItem(KeyEntries, string(data)); err != nil {
		return fmt.Errorf("persisting entries: %w", err)
	}
	return nil
}

func (s *EntryStore) commit(entries []DailyEntry) {
	s.mu.Lock()
	s.entries = entries
	s.publishLocked()
}

// publishLocked must be called with s.mu held; it releases s.mu before
// invoking callbacks.
func (s *EntryStore) publishLocked() {
	snapshot := cloneEntries(s.entries)
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	if s.entrySubs.count() > 0 {
		s.entrySubs.publish(cloneEntries(snapshot))
	}
	if s.derivedSubs.count() > 0 {
		s.derivedSubs.publish(s.derive(snapshot))
	}
}

func (s *EntryStore) derive(entries []DailyEntry) Derived {
	now := s.clock.Now()
	today := LocalDate(now)
	d := Derived{Date: today, Streak: Streak(entryDates(entries), now)}
	if e, ok := findByDate(entries, today); ok {
		d.Today = &e
		d.HasToday = true
	}
	return d
}

func findByDate(entries []DailyEntry, date string) (DailyEntry, bool) {
	for _, e := range entries {
		if e.Date == date {
			return e, true
		}
	}
	return DailyEntry{}, false
}
