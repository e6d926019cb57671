package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

type Store interface {
	// RulesForDate returns the active recurring rules for date's weekday and
	// the active rules pinned to date.
	RulesForDate(ctx context.Context, therapistID string, date time.Time) ([]model.AvailabilityRule, error)
	// ActiveStartsBetween returns scheduled starts of PENDING and CONFIRMED
	// appointments in [from, to).
	ActiveStartsBetween(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error)
}

type Observer interface {
	ObserveSlotResolution(d time.Duration)
}

type Resolver struct {
	store    Store
	loc      *time.Location
	observer Observer
}

func NewResolver(store Store, loc *time.Location, observer Observer) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{store: store, loc: loc, observer: observer}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Slots resolves the bookable slots of therapistID on date. A day without
// rules yields an empty list, not an error.
func (r *Resolver) Slots(ctx context.Context, therapistID string, date time.Time) ([]model.TimeSlot, error) {
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveSlotResolution(time.Since(start))
		}
	}()

	dayStart, dayEnd := DayBounds(date, r.loc)
	rules, err := r.store.RulesForDate(ctx, therapistID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}
	if len(rules) == 0 {
		return []model.TimeSlot{}, nil
	}

	starts, err := r.store.ActiveStartsBetween(ctx, therapistID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load occupied slots: %w", err)
	}
	return ResolveSlots(dayStart, rules, OccupiedClocks(starts, r.loc)), nil
}
