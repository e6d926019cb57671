package model

import "time"

// AvailabilityRule is a window in which a therapist accepts appointments.
// A rule without SpecificDate repeats every week on DayOfWeek; a rule with
// SpecificDate applies to that calendar date only.
type AvailabilityRule struct {
	ID           string
	TherapistID  string
	DayOfWeek    time.Weekday
	StartMinute  int
	EndMinute    int
	Active       bool
	SpecificDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r AvailabilityRule) Recurring() bool { return r.SpecificDate == nil }

// TimeSlot is derived from rules and appointments; it is never stored.
type TimeSlot struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}
