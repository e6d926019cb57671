package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

var madrid = mustLoad("Europe/Madrid")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, madrid)

func weekly(day time.Weekday, start, end string) model.AvailabilityRule {
	s, _ := ParseClock(start)
	e, _ := ParseClock(end)
	return model.AvailabilityRule{TherapistID: "t1", DayOfWeek: day, StartMinute: s, EndMinute: e, Active: true}
}

func TestResolveSlots_MondayWindowIsHalfOpen(t *testing.T) {
	slots := ResolveSlots(monday, []model.AvailabilityRule{weekly(time.Monday, "09:00", "11:00")}, nil)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %+v", slots)
	}
	if slots[0] != (model.TimeSlot{Date: "2026-03-02", Time: "09:00", Available: true}) {
		t.Fatalf("unexpected first slot %+v", slots[0])
	}
	if slots[1].Time != "10:00" || !slots[1].Available {
		t.Fatalf("unexpected second slot %+v", slots[1])
	}
}

func TestResolveSlots_OccupiedSlotIsUnavailable(t *testing.T) {
	slots := ResolveSlots(monday, []model.AvailabilityRule{weekly(time.Monday, "09:00", "11:00")}, map[string]bool{"10:00": true})
	if len(slots) != 2 || !slots[0].Available || slots[1].Available {
		t.Fatalf("expected 09:00 free and 10:00 taken, got %+v", slots)
	}
}

func TestResolveSlots_NoRulesForWeekday(t *testing.T) {
	slots := ResolveSlots(monday.AddDate(0, 0, 1), []model.AvailabilityRule{weekly(time.Monday, "09:00", "11:00")}, nil)
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", slots)
	}
}

func TestResolveSlots_TruncatesPartialWindow(t *testing.T) {
	slots := ResolveSlots(monday, []model.AvailabilityRule{weekly(time.Monday, "09:30", "11:00")}, nil)
	if len(slots) != 1 || slots[0].Time != "09:30" {
		t.Fatalf("expected only 09:30, got %+v", slots)
	}
}

func TestResolveSlots_OverlappingRulesSortedWithoutDuplicates(t *testing.T) {
	rules := []model.AvailabilityRule{
		weekly(time.Monday, "15:00", "17:00"),
		weekly(time.Monday, "09:00", "12:00"),
		weekly(time.Monday, "10:00", "12:00"),
		{TherapistID: "t1", DayOfWeek: time.Monday, StartMinute: 7 * 60, EndMinute: 8 * 60, Active: false},
	}
	slots := ResolveSlots(monday, rules, map[string]bool{"10:00": true})
	want := []string{"09:00", "10:00", "11:00", "15:00", "16:00"}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %+v", want, slots)
	}
	for i, w := range want {
		if slots[i].Time != w {
			t.Fatalf("slot %d: expected %s, got %s", i, w, slots[i].Time)
		}
		if slots[i].Available == (w == "10:00") {
			t.Fatalf("slot %s has wrong availability", w)
		}
	}
}

func TestResolveSlots_DateSpecificRule(t *testing.T) {
	d := time.Date(2026, 3, 4, 0, 0, 0, 0, madrid)
	rule := model.AvailabilityRule{TherapistID: "t1", DayOfWeek: d.Weekday(), StartMinute: 18 * 60, EndMinute: 19 * 60, Active: true, SpecificDate: &d}

	if got := ResolveSlots(d, []model.AvailabilityRule{rule}, nil); len(got) != 1 || got[0].Time != "18:00" {
		t.Fatalf("expected 18:00 on the pinned date, got %+v", got)
	}
	if got := ResolveSlots(d.AddDate(0, 0, 7), []model.AvailabilityRule{rule}, nil); len(got) != 0 {
		t.Fatalf("pinned rule must not repeat weekly, got %+v", got)
	}
}

func TestCovers(t *testing.T) {
	rules := []model.AvailabilityRule{weekly(time.Monday, "09:00", "11:00"), weekly(time.Monday, "12:00", "14:00")}
	cases := []struct {
		start, end string
		want       bool
	}{
		{"09:00", "10:00", true},
		{"10:00", "11:00", true},
		{"10:30", "11:30", false},
		{"10:00", "13:00", false},
		{"12:00", "14:00", true},
		{"11:00", "11:00", false},
	}
	for _, tc := range cases {
		s, _ := ParseClock(tc.start)
		e, _ := ParseClock(tc.end)
		if got := Covers(rules, monday, s, e); got != tc.want {
			t.Fatalf("[%s,%s): expected %v", tc.start, tc.end, tc.want)
		}
	}
	if Covers(rules, monday.AddDate(0, 0, 2), 9*60, 10*60) {
		t.Fatal("wednesday has no rules")
	}
}

func TestClockHelpers(t *testing.T) {
	if m, err := ParseClock("24:00"); err != nil || m != 1440 {
		t.Fatalf("got %d %v", m, err)
	}
	for _, bad := range []string{"9:00", "25:00", "10:60", "ab:cd", ""} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if FormatClock(9*60+5) != "09:05" {
		t.Fatal("expected zero padding")
	}
	occ := OccupiedClocks([]time.Time{time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}, madrid)
	if !occ["10:00"] {
		t.Fatalf("09:00 UTC is 10:00 in Madrid in winter, got %v", occ)
	}
}

type fakeStore struct {
	rules      []model.AvailabilityRule
	starts     []time.Time
	startsErr  error
	startsCall int
}

func (f *fakeStore) RulesForDate(_ context.Context, _ string, date time.Time) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if Applies(r, date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveStartsBetween(context.Context, string, time.Time, time.Time) ([]time.Time, error) {
	f.startsCall++
	return f.starts, f.startsErr
}

func TestResolverSlots(t *testing.T) {
	store := &fakeStore{
		rules:  []model.AvailabilityRule{weekly(time.Monday, "09:00", "11:00")},
		starts: []time.Time{time.Date(2026, 3, 2, 10, 0, 0, 0, madrid)},
	}
	r := NewResolver(store, madrid, nil)

	slots, err := r.Slots(context.Background(), "t1", monday.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 2 || !slots[0].Available || slots[1].Available {
		t.Fatalf("unexpected slots %+v", slots)
	}

	store.startsErr = errors.New("boom")
	calls := store.startsCall
	empty, err := r.Slots(context.Background(), "t1", monday.AddDate(0, 0, 1))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list without error, got %v %v", empty, err)
	}
	if store.startsCall != calls {
		t.Fatal("appointments must not be loaded for a day without rules")
	}
	if _, err := r.Slots(context.Background(), "t1", monday); err == nil {
		t.Fatal("expected storage error to surface")
	}
}
