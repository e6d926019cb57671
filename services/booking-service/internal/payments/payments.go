package payments

import (
	"context"
	"fmt"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Noop keeps the placeholder payment row without talking to a provider.
type Noop struct{}

func (Noop) Authorize(context.Context, model.Appointment, string) (string, error) { return "", nil }

func (Noop) Void(context.Context, string) error { return nil }

// intents is the part of the Stripe PaymentIntents client we use.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// Stripe places a manual-capture PaymentIntent for the appointment price.
// The clinic captures it after the session, or cancels it when the
// appointment is cancelled without a fee.
type Stripe struct {
	intents  intents
	currency string
}

func NewStripe(secretKey, currency string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	if currency == "" {
		currency = string(stripe.CurrencyEUR)
	}
	return &Stripe{intents: sc.PaymentIntents, currency: currency}
}

var hundred = decimal.NewFromInt(100)

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func (s *Stripe) Authorize(ctx context.Context, a model.Appointment, description string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(a.TotalAmount)),
		Currency:      stripe.String(s.currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(description),
		Metadata: map[string]string{
			"appointment_id": a.ID,
			"client_id":      a.ClientID,
			"therapist_id":   a.TherapistID,
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("appointment:" + a.ID)

	pi, err := s.intents.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return pi.ID, nil
}

func (s *Stripe) Void(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("void:" + ref)
	if _, err := s.intents.Cancel(ref, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", ref, err)
	}
	return nil
}
