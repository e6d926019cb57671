package storage

import (
	"context"

	"github.com/clinicazen/platform/libs/db"
)

// Delivery is the audit record of one email attempt.
type Delivery struct {
	EventID       string
	EventType     string
	AppointmentID string
	Recipient     string
	Template      string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertDelivery(ctx context.Context, d Delivery) error {
	var appointmentID, errText any
	if d.AppointmentID != "" {
		appointmentID = d.AppointmentID
	}
	if d.Error != "" {
		errText = d.Error
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_deliveries (event_id, event_type, appointment_id, recipient, template, status, error)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7)
	`, d.EventID, d.EventType, appointmentID, d.Recipient, d.Template, d.Status, errText)
	return err
}
