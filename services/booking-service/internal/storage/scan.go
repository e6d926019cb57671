package storage

import (
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

type scanner interface {
	Scan(dest ...any) error
}

// Money columns travel as text so no precision is lost on the way in or out.
func parseMoney(column, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", column, raw, err)
	}
	return d, nil
}

const appointmentColumns = `a.id::text, a.client_id::text, a.therapist_id::text, a.therapy_id::text,
	a.scheduled_at, a.duration_minutes, a.status, a.total_amount::text, a.payment_status,
	a.cancellation_fee::text, a.cancellation_reason, a.notes, a.created_at, a.updated_at,
	a.confirmed_at, a.cancelled_at`

func scanAppointment(row scanner, extra ...any) (model.Appointment, error) {
	var (
		a                     model.Appointment
		status, paymentStatus string
		total, fee            string
		confirmedAt           *time.Time
		cancelledAt           *time.Time
	)
	dest := []any{
		&a.ID, &a.ClientID, &a.TherapistID, &a.TherapyID,
		&a.ScheduledAt, &a.DurationMinutes, &status, &total, &paymentStatus,
		&fee, &a.CancellationReason, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
		&confirmedAt, &cancelledAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Appointment{}, err
	}
	var err error
	if a.TotalAmount, err = parseMoney("total_amount", total); err != nil {
		return model.Appointment{}, err
	}
	if a.CancellationFee, err = parseMoney("cancellation_fee", fee); err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.PaymentStatus = model.PaymentStatus(paymentStatus)
	a.ConfirmedAt = confirmedAt
	a.CancelledAt = cancelledAt
	return a, nil
}

const therapyColumns = `id::text, name, description, duration_minutes, price::text, image_url, active, created_at, updated_at`

func scanTherapy(row scanner) (model.Therapy, error) {
	var (
		t     model.Therapy
		price string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.DurationMinutes, &price, &t.ImageURL, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Therapy{}, err
	}
	var err error
	t.Price, err = parseMoney("price", price)
	return t, err
}

const ruleColumns = `id::text, therapist_id::text, day_of_week, start_minute, end_minute, active, specific_date, created_at, updated_at`

func scanRule(row scanner) (model.AvailabilityRule, error) {
	var (
		r   model.AvailabilityRule
		dow int
	)
	if err := row.Scan(&r.ID, &r.TherapistID, &dow, &r.StartMinute, &r.EndMinute, &r.Active, &r.SpecificDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.AvailabilityRule{}, err
	}
	r.DayOfWeek = time.Weekday(dow)
	return r, nil
}

const userColumns = `id::text, email, password_hash, full_name, phone, role, created_at`

func scanUser(row scanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt)
	return u, err
}
