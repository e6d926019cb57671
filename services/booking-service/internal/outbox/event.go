package outbox

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	AggregateAppointment = "appointment"

	TypeAppointmentRequested = "booking.appointment.requested.v1"
	TypeAppointmentConfirmed = "booking.appointment.confirmed.v1"
	TypeAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Topics lists every topic the booking service publishes to.
var Topics = []string{TypeAppointmentRequested, TypeAppointmentConfirmed, TypeAppointmentCancelled}

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AppointmentPayload is the body of every booking.appointment.* event.
// Amounts are decimal strings in euros.
type AppointmentPayload struct {
	AppointmentID      string    `json:"appointment_id"`
	Status             string    `json:"status"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	TherapyID          string    `json:"therapy_id"`
	TherapyName        string    `json:"therapy_name"`
	Client             Party     `json:"client"`
	Therapist          Party     `json:"therapist"`
	TotalAmount        string    `json:"total_amount"`
	CancellationFee    string    `json:"cancellation_fee,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

func NewAppointmentEvent(eventType string, p AppointmentPayload) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

func DecodeAppointmentPayload(raw []byte) (AppointmentPayload, error) {
	var p AppointmentPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}
