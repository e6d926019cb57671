package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/goccy/go-json"
)

type Store interface {
	InsertNotification(ctx context.Context, n model.Notification) (model.Notification, error)
}

// View is the JSON shape of a notification, both over HTTP and on the
// realtime stream.
type View struct {
	ID            string    `json:"id"`
	Kind          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

func ToView(n model.Notification) View {
	return View{
		ID:            n.ID,
		Kind:          string(n.Kind),
		Title:         n.Title,
		Message:       n.Message,
		AppointmentID: n.AppointmentID,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt,
	}
}

// Notifier stores a notification and pushes it to the recipient's live
// connections.
type Notifier struct {
	store  Store
	broker Broker
}

func NewNotifier(store Store, broker Broker) *Notifier {
	return &Notifier{store: store, broker: broker}
}

func (n *Notifier) Notify(ctx context.Context, msg model.Notification) error {
	saved, err := n.store.InsertNotification(ctx, msg)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if n.broker == nil {
		return nil
	}
	payload, err := json.Marshal(ToView(saved))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.broker.Publish(ctx, saved.UserID, payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
