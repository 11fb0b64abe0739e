package journal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAddOrUpdate_AppendsNewDate(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(st, clock, discardLogger())

	e := NewEntry("2024-03-10", clock)
	e.Mood = ptr(4.0)
	got, err := s.AddOrUpdate(e)
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if got.ID != e.ID || got.UpdatedAt != e.UpdatedAt {
		t.Errorf("appended entry was modified: %+v", got)
	}

	all := s.All()
	if len(all) != 1 || all[0].Date != "2024-03-10" {
		t.Fatalf("All = %+v", all)
	}

	raw, ok := st.get(KeyEntries)
	if !ok {
		t.Fatal("entries not persisted")
	}
	var persisted []DailyEntry
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("persisted blob is not JSON: %v", err)
	}
	if len(persisted) != 1 || *persisted[0].Mood != 4.0 {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestAddOrUpdate_ReplacesSameDateInPlace(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(st, clock, discardLogger())

	for _, d := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		if _, err := s.AddOrUpdate(NewEntry(d, clock)); err != nil {
			t.Fatalf("AddOrUpdate(%s): %v", d, err)
		}
	}

	clock.Advance(time.Hour)
	update := NewEntry("2024-03-09", clock)
	update.UpdatedAt = 1
	update.Highlight = ptr("long walk")
	got, err := s.AddOrUpdate(update)
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if got.UpdatedAt != clock.Now().UnixMilli() {
		t.Errorf("UpdatedAt = %d, want now (%d)", got.UpdatedAt, clock.Now().UnixMilli())
	}

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("len(All) = %d, want 3", len(all))
	}
	if all[1].Date != "2024-03-09" || all[1].Highlight == nil || *all[1].Highlight != "long walk" {
		t.Errorf("entry not replaced in place: %+v", all[1])
	}
}

func TestAddOrUpdate_Idempotent(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(newMockStorage(), clock, discardLogger())

	e := NewEntry("2024-03-10", clock)
	e.Mood = ptr(3.0)
	if _, err := s.AddOrUpdate(e); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddOrUpdate(e); err != nil {
		t.Fatal(err)
	}

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("len(All) = %d, want 1", len(all))
	}
	if *all[0].Mood != 3.0 {
		t.Errorf("Mood = %v", *all[0].Mood)
	}
}

func TestAddOrUpdate_PersistErrorLeavesStateUnchanged(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(st, clock, discardLogger())

	st.setErr = errStorageFull
	_, err := s.AddOrUpdate(NewEntry("2024-03-10", clock))
	if !errors.Is(err, errStorageFull) {
		t.Fatalf("err = %v, want wrapped errStorageFull", err)
	}
	if len(s.All()) != 0 {
		t.Error("in-memory state changed despite persistence failure")
	}
}

func TestSave_ReplacesCollection(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(st, clock, discardLogger())

	if _, err := s.AddOrUpdate(NewEntry("2024-03-01", clock)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]DailyEntry{NewEntry("2024-03-10", clock)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	all := s.All()
	if len(all) != 1 || all[0].Date != "2024-03-10" {
		t.Errorf("All = %+v", all)
	}

	if err := s.Save(nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	if raw, _ := st.get(KeyEntries); raw != "[]" {
		t.Errorf("persisted = %q, want []", raw)
	}
}

func TestInit_LoadsPersistedEntries(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	st.data[KeyEntries] = `[{"id":"a","date":"2024-03-10","mood":5,"energy":null,"highlight":null,"gratitude":"tea","createdAt":1,"updatedAt":2}]`

	s := NewEntryStore(st, clock, discardLogger())
	s.Init()

	e, ok := s.Today()
	if !ok {
		t.Fatal("Today: expected an entry")
	}
	if e.ID != "a" || *e.Mood != 5 || e.Energy != nil || *e.Gratitude != "tea" {
		t.Errorf("entry = %+v", e)
	}
}

func TestInit_MalformedKeepsState(t *testing.T) {
	st := newMockStorage()
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(st, clock, discardLogger())

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatal(err)
	}
	st.data[KeyEntries] = "{not json"
	s.Init()

	if len(s.All()) != 1 {
		t.Errorf("state changed after malformed load: %+v", s.All())
	}
}

func TestInit_ReadErrorKeepsEmpty(t *testing.T) {
	st := newMockStorage()
	st.getErr = errors.New("storage unavailable")
	s := NewEntryStore(st, fixedClock("2024-03-10"), discardLogger())
	s.Init()

	if len(s.All()) != 0 {
		t.Errorf("All = %+v, want empty", s.All())
	}
}

func TestNopStorage_InMemoryOnly(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(nil, clock, nil)
	s.Init()

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if _, ok := s.GetByDate("2024-03-10"); !ok {
		t.Error("entry not held in memory")
	}

	fresh := NewEntryStore(NopStorage{}, clock, nil)
	fresh.Init()
	if len(fresh.All()) != 0 {
		t.Error("NopStorage should not persist across stores")
	}
}

func TestSubscribe_DeliversCurrentThenChanges(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(newMockStorage(), clock, discardLogger())

	var got [][]DailyEntry
	unsubscribe := s.Subscribe(func(entries []DailyEntry) {
		got = append(got, entries)
	})
	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("initial delivery = %+v", got)
	}

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(got[1]) != 1 {
		t.Fatalf("after AddOrUpdate = %+v", got)
	}

	unsubscribe()
	unsubscribe()
	if _, err := s.AddOrUpdate(NewEntry("2024-03-09", clock)); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("callback invoked after unsubscribe: %d deliveries", len(got))
	}
}

func TestSubscribe_OrderPreserved(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(newMockStorage(), clock, discardLogger())

	var order []string
	s.Subscribe(func([]DailyEntry) { order = append(order, "first") })
	s.Subscribe(func([]DailyEntry) { order = append(order, "second") })
	order = nil

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestSubscribeDerived_Reactive(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(newMockStorage(), clock, discardLogger())

	var last Derived
	s.SubscribeDerived(func(d Derived) { last = d })
	if last.HasToday || last.Streak != 0 || last.Date != "2024-03-10" {
		t.Fatalf("initial derived = %+v", last)
	}

	if _, err := s.AddOrUpdate(NewEntry("2024-03-09", clock)); err != nil {
		t.Fatal(err)
	}
	if last.HasToday || last.Streak != 1 {
		t.Errorf("after yesterday: %+v", last)
	}

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatal(err)
	}
	if !last.HasToday || last.Today == nil || last.Today.Date != "2024-03-10" || last.Streak != 2 {
		t.Errorf("after today: %+v", last)
	}
}

func TestSubscribe_CallbackMayRead(t *testing.T) {
	clock := fixedClock("2024-03-10")
	s := NewEntryStore(newMockStorage(), clock, discardLogger())

	var streaks []int
	s.Subscribe(func([]DailyEntry) { streaks = append(streaks, s.Streak()) })

	if _, err := s.AddOrUpdate(NewEntry("2024-03-10", clock)); err != nil {
		t.Fatal(err)
	}
	if len(streaks) != 2 || streaks[1] != 1 {
		t.Errorf("streaks seen by callback = %v", streaks)
	}
}

func TestNewEntry(t *testing.T) {
	clock := fixedClock("2024-03-10")
	a := NewEntry("2024-03-10", clock)
	b := NewEntry("2024-03-10", clock)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not unique: %q %q", a.ID, b.ID)
	}
	if a.CreatedAt != a.UpdatedAt || a.CreatedAt != clock.Now().UnixMilli() {
		t.Errorf("timestamps = %d/%d", a.CreatedAt, a.UpdatedAt)
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"mood", "energy", "highlight", "gratitude"} {
		v, ok := m[k]
		if !ok || v != nil {
			t.Errorf("%s = %v (present %v), want null", k, v, ok)
		}
	}
}
