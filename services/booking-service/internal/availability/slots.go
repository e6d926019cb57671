package availability

import (
	"sort"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

// SlotStep is the length of one bookable slot.
const SlotStep = 60

// Applies reports whether rule contributes windows to date: active, and
// either recurring on date's weekday or pinned to date itself.
func Applies(rule model.AvailabilityRule, date time.Time) bool {
	if !rule.Active {
		return false
	}
	if rule.SpecificDate != nil {
		return sameDate(*rule.SpecificDate, date)
	}
	return rule.DayOfWeek == date.Weekday()
}

// ResolveSlots walks every rule that applies to date in SlotStep increments
// over [start, end), dropping a trailing partial increment. occupied holds
// the "HH:MM" starts of appointments that still hold their slot. The result
// is sorted by time with one entry per time.
func ResolveSlots(date time.Time, rules []model.AvailabilityRule, occupied map[string]bool) []model.TimeSlot {
	day := date.Format(time.DateOnly)
	seen := map[string]bool{}
	slots := []model.TimeSlot{}
	for _, rule := range rules {
		if !Applies(rule, date) {
			continue
		}
		for m := rule.StartMinute; m+SlotStep <= rule.EndMinute; m += SlotStep {
			clock := FormatClock(m)
			if seen[clock] {
				continue
			}
			seen[clock] = true
			slots = append(slots, model.TimeSlot{Date: day, Time: clock, Available: !occupied[clock]})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	return slots
}

// Covers reports whether [startMinute, endMinute) lies inside a single rule
// that applies to date.
func Covers(rules []model.AvailabilityRule, date time.Time, startMinute, endMinute int) bool {
	if endMinute <= startMinute {
		return false
	}
	for _, rule := range rules {
		if !Applies(rule, date) {
			continue
		}
		if startMinute >= rule.StartMinute && endMinute <= rule.EndMinute {
			return true
		}
	}
	return false
}

// OccupiedClocks maps appointment starts to "HH:MM" in loc.
func OccupiedClocks(starts []time.Time, loc *time.Location) map[string]bool {
	out := make(map[string]bool, len(starts))
	for _, s := range starts {
		out[s.In(loc).Format("15:04")] = true
	}
	return out
}
