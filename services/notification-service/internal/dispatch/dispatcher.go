package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clinicazen/platform/libs/kafkax"
	"github.com/clinicazen/platform/services/notification-service/internal/mail"
	"github.com/clinicazen/platform/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

type DeliveryStore interface {
	InsertDelivery(ctx context.Context, d storage.Delivery) error
}

// Dispatcher turns booking events into emails and records every attempt.
type Dispatcher struct {
	sender mail.Sender
	store  DeliveryStore
	loc    *time.Location
	logger *slog.Logger
	sent   *prometheus.CounterVec
}

func New(sender mail.Sender, store DeliveryStore, loc *time.Location, logger *slog.Logger, reg prometheus.Registerer) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		store:  store,
		loc:    loc,
		logger: logger,
		sent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "zen_emails_total",
			Help: "Emails attempted, by template and outcome.",
		}, []string{"template", "status"}),
	}
}

// Handle is a consumer.Handler. Malformed or unknown events are logged and
// dropped; only a failure to record a delivery is returned.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	evt, err := mail.DecodeEvent(msg.Value)
	if err != nil {
		d.logger.ErrorContext(ctx, "invalid booking event", "err", err, "topic", msg.Topic, "event_id", meta.EventID)
		return nil
	}
	emails, err := mail.Render(meta.EventType, evt, d.loc)
	if errors.Is(err, mail.ErrUnknownEvent) {
		d.logger.WarnContext(ctx, "no email for event type", "event_type", meta.EventType)
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range emails {
		delivery := storage.Delivery{
			EventID:       meta.EventID,
			EventType:     meta.EventType,
			AppointmentID: evt.AppointmentID,
			Recipient:     e.Message.To,
			Template:      e.Template,
			Status:        "sent",
		}
		if err := d.sender.Send(ctx, e.Message); err != nil {
			delivery.Status = "failed"
			delivery.Error = err.Error()
			d.logger.ErrorContext(ctx, "email send failed", "err", err, "template", e.Template, "appointment_id", evt.AppointmentID)
		}
		d.sent.WithLabelValues(e.Template, delivery.Status).Inc()
		if err := d.store.InsertDelivery(ctx, delivery); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	d.logger.InfoContext(ctx, "booking event emailed", "event_type", meta.EventType, "appointment_id", evt.AppointmentID, "emails", len(emails))
	return nil
}
