package storage

import (
	"context"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/appointments"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (t *Tx) ActiveAppointmentAt(ctx context.Context, therapistID string, at time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE therapist_id = $1 AND scheduled_at = $2 AND status IN ('PENDING', 'CONFIRMED')
		)
	`, therapistID, at).Scan(&exists)
	return exists, err
}

func (t *Tx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_id, therapist_id, therapy_id, scheduled_at, duration_minutes, status,
			 total_amount, payment_status, cancellation_fee, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9::numeric, $10)
		RETURNING id::text, created_at, updated_at
	`, a.ClientID, a.TherapistID, a.TherapyID, a.ScheduledAt, a.DurationMinutes, string(a.Status),
		a.TotalAmount.String(), string(a.PaymentStatus), a.CancellationFee.String(), a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (t *Tx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
		FOR UPDATE
	`, id))
}

func (t *Tx) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CONFIRMED', confirmed_at = $2, updated_at = $2
		WHERE id = $1
	`, id, at)
	return err
}

func (t *Tx) MarkCancelled(ctx context.Context, id string, c appointments.Cancellation) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			cancellation_fee = $2::numeric,
			cancellation_reason = $3,
			cancelled_at = $4,
			payment_status = $5,
			updated_at = $4
		WHERE id = $1
	`, id, c.Fee.String(), c.Reason, c.At, string(c.PaymentStatus))
	return err
}

func (t *Tx) InsertPayment(ctx context.Context, p *model.Payment) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO payments (appointment_id, amount, currency, status, provider_ref)
		VALUES ($1, $2::numeric, $3, $4, $5)
		RETURNING id::text, created_at
	`, p.AppointmentID, p.Amount.String(), p.Currency, string(p.Status), p.ProviderRef).Scan(&p.ID, &p.CreatedAt)
}

func (t *Tx) SettlePayment(ctx context.Context, appointmentID string, amount decimal.Decimal, status model.PaymentStatus) (string, error) {
	var ref string
	err := t.tx.QueryRow(ctx, `
		UPDATE payments
		SET amount = $2::numeric, status = $3, updated_at = now()
		WHERE appointment_id = $1
		RETURNING provider_ref
	`, appointmentID, amount.String(), string(status)).Scan(&ref)
	return ref, err
}

func (t *Tx) SetPaymentProviderRef(ctx context.Context, appointmentID, ref string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE payments SET provider_ref = $2, updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, ref)
	return err
}

// ActiveStartsBetween returns starts of PENDING and CONFIRMED appointments
// of therapistID in [from, to).
func (s *Store) ActiveStartsBetween(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE therapist_id = $1
			AND status IN ('PENDING', 'CONFIRMED')
			AND scheduled_at >= $2
			AND scheduled_at < $3
		ORDER BY scheduled_at
	`, therapistID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

const detailJoins = `
	FROM appointments a
	JOIN users c ON c.id = a.client_id
	JOIN users t ON t.id = a.therapist_id
	JOIN therapies th ON th.id = a.therapy_id`

const detailColumns = appointmentColumns + `, c.full_name, c.email, t.full_name, t.email, th.name`

func (s *Store) listDetails(ctx context.Context, where string, args ...any) ([]model.AppointmentDetail, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+` `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AppointmentDetail{}
	for rows.Next() {
		var d model.AppointmentDetail
		a, err := scanAppointment(rows, &d.ClientName, &d.ClientEmail, &d.TherapistName, &d.TherapistEmail, &d.TherapyName)
		if err != nil {
			return nil, err
		}
		d.Appointment = a
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListForClient(ctx context.Context, clientID string) ([]model.AppointmentDetail, error) {
	return s.listDetails(ctx, `WHERE a.client_id = $1 ORDER BY a.scheduled_at DESC`, clientID)
}

func (s *Store) ListForTherapist(ctx context.Context, therapistID string) ([]model.AppointmentDetail, error) {
	return s.listDetails(ctx, `WHERE a.therapist_id = $1 ORDER BY a.scheduled_at DESC`, therapistID)
}

// ListAll returns the most recent appointments across the clinic. A
// non-empty status narrows the list.
func (s *Store) ListAll(ctx context.Context, status model.AppointmentStatus, limit int) ([]model.AppointmentDetail, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.listDetails(ctx, `
		WHERE ($1 = '' OR a.status = $1)
		ORDER BY a.scheduled_at DESC
		LIMIT $2`, string(status), limit)
}

func (s *Store) AppointmentDetail(ctx context.Context, id string) (model.AppointmentDetail, error) {
	list, err := s.listDetails(ctx, `WHERE a.id = $1`, id)
	if err != nil {
		return model.AppointmentDetail{}, err
	}
	if len(list) == 0 {
		return model.AppointmentDetail{}, pgx.ErrNoRows
	}
	return list[0], nil
}
