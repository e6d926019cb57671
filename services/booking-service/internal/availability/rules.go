package availability

import (
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

// Validate checks the window bounds of a rule.
func Validate(rule model.AvailabilityRule) error {
	if rule.DayOfWeek < time.Sunday || rule.DayOfWeek > time.Saturday {
		return fmt.Errorf("dayOfWeek must be between 0 and 6")
	}
	if rule.StartMinute < 0 || rule.EndMinute > minutesPerDay {
		return fmt.Errorf("window must be within the day")
	}
	if rule.EndMinute <= rule.StartMinute {
		return fmt.Errorf("endTime must be after startTime")
	}
	return nil
}

type ruleKey struct {
	day   time.Weekday
	start int
	end   int
}

func keyOf(r model.AvailabilityRule) ruleKey {
	return ruleKey{day: r.DayOfWeek, start: r.StartMinute, end: r.EndMinute}
}

// Plan is the set of writes that turns a therapist's current weekly rules
// into the desired ones.
type Plan struct {
	Insert []model.AvailabilityRule
	Update []model.AvailabilityRule
	Delete []string
}

func (p Plan) Empty() bool {
	return len(p.Insert) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Diff compares recurring rules keyed by (day, start, end). Rules present in
// both are updated only when their active flag differs; duplicates in
// desired collapse to the last occurrence.
func Diff(current, desired []model.AvailabilityRule) Plan {
	want := make(map[ruleKey]model.AvailabilityRule, len(desired))
	order := make([]ruleKey, 0, len(desired))
	for _, r := range desired {
		k := keyOf(r)
		if _, dup := want[k]; !dup {
			order = append(order, k)
		}
		want[k] = r
	}

	var plan Plan
	have := make(map[ruleKey]bool, len(current))
	for _, cur := range current {
		if !cur.Recurring() {
			continue
		}
		k := keyOf(cur)
		if have[k] {
			// Duplicate rows from older writes are folded into one.
			plan.Delete = append(plan.Delete, cur.ID)
			continue
		}
		have[k] = true
		next, ok := want[k]
		if !ok {
			plan.Delete = append(plan.Delete, cur.ID)
			continue
		}
		if next.Active != cur.Active {
			cur.Active = next.Active
			plan.Update = append(plan.Update, cur)
		}
	}
	for _, k := range order {
		if !have[k] {
			plan.Insert = append(plan.Insert, want[k])
		}
	}
	return plan
}
