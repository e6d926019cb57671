package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Active reports whether the appointment still holds its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Appointment struct {
	ID                 string
	ClientID           string
	TherapistID        string
	TherapyID          string
	ScheduledAt        time.Time
	DurationMinutes    int
	Status             AppointmentStatus
	TotalAmount        decimal.Decimal
	PaymentStatus      PaymentStatus
	CancellationFee    decimal.Decimal
	CancellationReason string
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
}

func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// AppointmentDetail is an appointment joined with the people and therapy it refers to.
type AppointmentDetail struct {
	Appointment
	ClientName     string
	ClientEmail    string
	TherapistName  string
	TherapistEmail string
	TherapyName    string
}

type Payment struct {
	ID            string
	AppointmentID string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	ProviderRef   string
	CreatedAt     time.Time
}
