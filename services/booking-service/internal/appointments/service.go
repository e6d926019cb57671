package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

// Tx is the transactional view of storage used by the state machine.
// Lookups return errors matching db.IsNotFound for missing rows and inserts
// return errors matching db.IsConflict when the active slot index fires.
type Tx interface {
	TherapyByID(ctx context.Context, id string) (model.Therapy, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	RulesForDate(ctx context.Context, therapistID string, date time.Time) ([]model.AvailabilityRule, error)
	ActiveAppointmentAt(ctx context.Context, therapistID string, at time.Time) (bool, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	InsertPayment(ctx context.Context, p *model.Payment) error
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
	MarkCancelled(ctx context.Context, id string, c Cancellation) error
	SettlePayment(ctx context.Context, appointmentID string, amount decimal.Decimal, status model.PaymentStatus) (providerRef string, err error)
	SetPaymentProviderRef(ctx context.Context, appointmentID, ref string) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}

// RunInTx runs fn in one database transaction, committing on nil.
type RunInTx func(ctx context.Context, fn func(Tx) error) error

type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type Payments interface {
	Authorize(ctx context.Context, a model.Appointment, description string) (providerRef string, err error)
	Void(ctx context.Context, providerRef string) error
}

type Recorder interface {
	Booked(result string)
	Confirmed()
	Cancelled(withFee bool)
	NotificationFailed()
}

type Cancellation struct {
	Fee           decimal.Decimal
	Reason        string
	At            time.Time
	PaymentStatus model.PaymentStatus
}

type Options struct {
	Location *time.Location
	Notifier Notifier
	Payments Payments
	Metrics  Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	inTx     RunInTx
	loc      *time.Location
	notifier Notifier
	payments Payments
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(inTx RunInTx, opts Options) *Service {
	s := &Service{
		inTx:     inTx,
		loc:      opts.Location,
		notifier: opts.Notifier,
		payments: opts.Payments,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

type BookRequest struct {
	ClientID    string
	TherapistID string
	TherapyID   string
	// Date is any instant on the requested calendar day in the clinic zone.
	Date        time.Time
	StartMinute int
	// EndMinute may be zero, meaning start plus the therapy duration.
	EndMinute int
	Notes     string
}

// Book validates the request against the therapist's rules and existing
// appointments and creates a PENDING appointment with its payment row in
// a single transaction.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	var (
		appt    model.Appointment
		payload outbox.AppointmentPayload
	)
	err := s.inTx(ctx, func(tx Tx) error {
		therapy, err := tx.TherapyByID(ctx, req.TherapyID)
		if db.IsNotFound(err) || (err == nil && !therapy.Active) {
			return ErrTherapyNotFound.Wrap(err)
		}
		if err != nil {
			return fmt.Errorf("load therapy: %w", err)
		}
		therapist, err := tx.UserByID(ctx, req.TherapistID)
		if db.IsNotFound(err) || (err == nil && therapist.Role != string(auth.RoleTherapist)) {
			return ErrTherapistNotFound.Wrap(err)
		}
		if err != nil {
			return fmt.Errorf("load therapist: %w", err)
		}
		client, err := tx.UserByID(ctx, req.ClientID)
		if err != nil {
			return fmt.Errorf("load client: %w", err)
		}

		start := req.StartMinute
		end := req.EndMinute
		if end == 0 {
			end = start + therapy.DurationMinutes
		}
		if end <= start {
			return ErrInvalidWindow
		}
		// The whole session must fit, even when the caller sent a shorter window.
		if sessionEnd := start + therapy.DurationMinutes; sessionEnd > end {
			end = sessionEnd
		}

		day, _ := availability.DayBounds(req.Date, s.loc)
		scheduledAt := availability.At(day, start, s.loc)
		if !scheduledAt.After(s.now()) {
			return ErrPastAppointment
		}

		rules, err := tx.RulesForDate(ctx, req.TherapistID, day)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		if !availability.Covers(rules, day, start, end) {
			return ErrOutsideAvailability
		}

		taken, err := tx.ActiveAppointmentAt(ctx, req.TherapistID, scheduledAt)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		appt = model.Appointment{
			ClientID:        req.ClientID,
			TherapistID:     req.TherapistID,
			TherapyID:       therapy.ID,
			ScheduledAt:     scheduledAt,
			DurationMinutes: therapy.DurationMinutes,
			Status:          model.StatusPending,
			TotalAmount:     therapy.Price,
			PaymentStatus:   model.PaymentPending,
			CancellationFee: decimal.Zero,
			Notes:           req.Notes,
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			if db.IsConflict(err) {
				return ErrSlotTaken.Wrap(err)
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := tx.InsertPayment(ctx, &model.Payment{
			AppointmentID: appt.ID,
			Amount:        therapy.Price,
			Currency:      "EUR",
			Status:        model.PaymentPending,
		}); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		payload = buildPayload(appt, therapy, client, therapist, s.now())
		return enqueue(ctx, tx, outbox.TypeAppointmentRequested, payload)
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.Booked("conflict")
		} else {
			s.metrics.Booked("rejected")
		}
		return model.Appointment{}, err
	}
	s.metrics.Booked("created")
	s.logger.InfoContext(ctx, "appointment requested",
		"appointment_id", appt.ID,
		"therapist_id", appt.TherapistID,
		"scheduled_at", appt.ScheduledAt,
	)

	s.notify(ctx, requestedNotification(payload, s.loc))
	s.authorizePayment(ctx, appt, payload.TherapyName)
	return appt, nil
}

// Confirm moves PENDING to CONFIRMED. Confirming a confirmed appointment is
// a no-op that sends no notification.
func (s *Service) Confirm(ctx context.Context, caller auth.Principal, id string) (model.Appointment, error) {
	var (
		appt    model.Appointment
		changed bool
		payload outbox.AppointmentPayload
	)
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.AppointmentForUpdate(ctx, id)
		if db.IsNotFound(err) {
			return ErrAppointmentNotFound.Wrap(err)
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if err := authorizeConfirm(caller, appt); err != nil {
			return err
		}
		changed, err = confirmTransition(appt.Status)
		if err != nil || !changed {
			return err
		}

		now := s.now()
		if err := tx.MarkConfirmed(ctx, appt.ID, now); err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		appt.Status = model.StatusConfirmed
		appt.ConfirmedAt = &now
		appt.UpdatedAt = now

		payload, err = s.loadPayload(ctx, tx, appt)
		if err != nil {
			return err
		}
		return enqueue(ctx, tx, outbox.TypeAppointmentConfirmed, payload)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		s.metrics.Confirmed()
		s.logger.InfoContext(ctx, "appointment confirmed", "appointment_id", appt.ID, "by", caller.UserID)
		s.notify(ctx, confirmedNotification(payload, s.loc))
	}
	return appt, nil
}

// Cancel moves PENDING or CONFIRMED to CANCELLED and fixes the fee. A
// second cancel returns the stored cancellation unchanged.
func (s *Service) Cancel(ctx context.Context, caller auth.Principal, id, reason string) (model.Appointment, error) {
	var (
		appt        model.Appointment
		changed     bool
		payload     outbox.AppointmentPayload
		providerRef string
	)
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.AppointmentForUpdate(ctx, id)
		if db.IsNotFound(err) {
			return ErrAppointmentNotFound.Wrap(err)
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if err := authorizeCancel(caller, appt); err != nil {
			return err
		}
		if changed = cancelTransition(appt.Status); !changed {
			return nil
		}

		now := s.now()
		fee := CancellationFee(appt.TotalAmount, appt.ScheduledAt, now)
		if reason == "" {
			reason = defaultCancelReason(caller, appt)
		}
		paymentStatus := model.PaymentCancelled
		if fee.IsPositive() {
			paymentStatus = model.PaymentPending
		}
		c := Cancellation{Fee: fee, Reason: reason, At: now, PaymentStatus: paymentStatus}
		if err := tx.MarkCancelled(ctx, appt.ID, c); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		providerRef, err = tx.SettlePayment(ctx, appt.ID, fee, paymentStatus)
		if err != nil && !db.IsNotFound(err) {
			return fmt.Errorf("settle payment: %w", err)
		}

		appt.Status = model.StatusCancelled
		appt.CancellationFee = fee
		appt.CancellationReason = reason
		appt.CancelledAt = &now
		appt.UpdatedAt = now
		appt.PaymentStatus = paymentStatus

		payload, err = s.loadPayload(ctx, tx, appt)
		if err != nil {
			return err
		}
		return enqueue(ctx, tx, outbox.TypeAppointmentCancelled, payload)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if !changed {
		return appt, nil
	}

	withFee := appt.CancellationFee.IsPositive()
	s.metrics.Cancelled(withFee)
	s.logger.InfoContext(ctx, "appointment cancelled",
		"appointment_id", appt.ID,
		"by", caller.UserID,
		"fee", appt.CancellationFee.String(),
	)
	for _, n := range cancelledNotifications(payload, s.loc) {
		s.notify(ctx, n)
	}
	if !withFee && providerRef != "" && s.payments != nil {
		if err := s.payments.Void(ctx, providerRef); err != nil {
			s.logger.WarnContext(ctx, "payment void failed", "appointment_id", appt.ID, "err", err)
		}
	}
	return appt, nil
}

func (s *Service) loadPayload(ctx context.Context, tx Tx, appt model.Appointment) (outbox.AppointmentPayload, error) {
	therapy, err := tx.TherapyByID(ctx, appt.TherapyID)
	if err != nil {
		return outbox.AppointmentPayload{}, fmt.Errorf("load therapy: %w", err)
	}
	client, err := tx.UserByID(ctx, appt.ClientID)
	if err != nil {
		return outbox.AppointmentPayload{}, fmt.Errorf("load client: %w", err)
	}
	therapist, err := tx.UserByID(ctx, appt.TherapistID)
	if err != nil {
		return outbox.AppointmentPayload{}, fmt.Errorf("load therapist: %w", err)
	}
	return buildPayload(appt, therapy, client, therapist, s.now()), nil
}

// notify never fails the caller; notifications are best-effort.
func (s *Service) notify(ctx context.Context, n model.Notification) {
	if s.notifier == nil || n.UserID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.NotificationFailed()
		s.logger.WarnContext(ctx, "notification failed",
			"err", err,
			"user_id", n.UserID,
			"kind", n.Kind,
			"appointment_id", n.AppointmentID,
		)
	}
}

func (s *Service) authorizePayment(ctx context.Context, appt model.Appointment, therapyName string) {
	if s.payments == nil {
		return
	}
	ref, err := s.payments.Authorize(ctx, appt, therapyName)
	if err != nil {
		s.logger.WarnContext(ctx, "payment authorization failed", "appointment_id", appt.ID, "err", err)
		return
	}
	if ref == "" {
		return
	}
	err = s.inTx(ctx, func(tx Tx) error {
		return tx.SetPaymentProviderRef(ctx, appt.ID, ref)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "store payment reference failed", "appointment_id", appt.ID, "err", err)
	}
}

func buildPayload(a model.Appointment, therapy model.Therapy, client, therapist model.User, now time.Time) outbox.AppointmentPayload {
	p := outbox.AppointmentPayload{
		AppointmentID:      a.ID,
		Status:             string(a.Status),
		ScheduledAt:        a.ScheduledAt,
		DurationMinutes:    a.DurationMinutes,
		TherapyID:          therapy.ID,
		TherapyName:        therapy.Name,
		Client:             outbox.Party{ID: client.ID, Name: client.FullName, Email: client.Email},
		Therapist:          outbox.Party{ID: therapist.ID, Name: therapist.FullName, Email: therapist.Email},
		TotalAmount:        a.TotalAmount.StringFixed(2),
		CancellationReason: a.CancellationReason,
		Notes:              a.Notes,
		OccurredAt:         now.UTC(),
	}
	if a.CancellationFee.IsPositive() {
		p.CancellationFee = a.CancellationFee.String()
	}
	return p
}

func enqueue(ctx context.Context, tx Tx, eventType string, p outbox.AppointmentPayload) error {
	evt, err := outbox.NewAppointmentEvent(eventType, p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := tx.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) Booked(string)       {}
func (nopRecorder) Confirmed()          {}
func (nopRecorder) Cancelled(bool)      {}
func (nopRecorder) NotificationFailed() {}
