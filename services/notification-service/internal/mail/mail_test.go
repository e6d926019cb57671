package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

var madrid, _ = time.LoadLocation("Europe/Madrid")

func sampleEvent() Event {
	return Event{
		AppointmentID:   "4f7d9b2e-0000-4000-8000-000000000001",
		Status:          "PENDING",
		ScheduledAt:     time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		TherapyName:     "Reiki",
		Client:          Party{ID: "c1", Name: "Lucía", Email: "lucia@example.com"},
		Therapist:       Party{ID: "t1", Name: "Marta", Email: "marta@example.com"},
		TotalAmount:     "60.00",
	}
}

func TestRenderRequestedAddressesBothParties(t *testing.T) {
	out, err := Render(TypeRequested, sampleEvent(), madrid)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(out))
	}
	if out[0].Message.To != "lucia@example.com" || out[1].Message.To != "marta@example.com" {
		t.Fatalf("unexpected recipients %q, %q", out[0].Message.To, out[1].Message.To)
	}
	body := out[0].Message.Body
	if !strings.Contains(body, "lunes 2 de marzo de 2026 a las 09:00") {
		t.Fatalf("body must use the clinic's local time, got:\n%s", body)
	}
	if strings.Contains(out[1].Message.Body, "Notas del cliente") {
		t.Fatal("notes line should be omitted when there are no notes")
	}
}

func TestRenderCancelledMentionsFeeOnlyWhenCharged(t *testing.T) {
	e := sampleEvent()
	e.CancellationReason = "Cancelada por el cliente"

	out, err := Render(TypeCancelled, e, madrid)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out[0].Message.Body, "cargo") {
		t.Fatalf("no fee expected, got:\n%s", out[0].Message.Body)
	}

	e.CancellationFee = "30.000"
	out, err = Render(TypeCancelled, e, madrid)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out[0].Message.Body, "cargo de 30.00 €") {
		t.Fatalf("fee expected, got:\n%s", out[0].Message.Body)
	}
	if strings.Contains(out[1].Message.Body, "cargo") {
		t.Fatal("therapist email must not mention the fee")
	}
}

func TestRenderSkipsPartiesWithoutEmail(t *testing.T) {
	e := sampleEvent()
	e.Therapist.Email = ""
	out, err := Render(TypeRequested, e, madrid)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) != 1 || out[0].Template != "requested_client" {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestRenderUnknownEvent(t *testing.T) {
	if _, err := Render("booking.appointment.moved.v1", sampleEvent(), madrid); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"appointment_id":"a1","scheduled_at":"2026-03-02T08:00:00Z","client":{"name":"Lucía","email":"l@x"}}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if e.Client.Email != "l@x" {
		t.Fatalf("unexpected client %+v", e.Client)
	}
	if _, err := DecodeEvent([]byte(`{"status":"PENDING"}`)); err == nil {
		t.Fatal("expected error for incomplete event")
	}
}

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	d := &captureDialer{}
	s := &SMTPSender{dialer: d, from: "citas@clinicazen.es", fromName: "Clínica Zen"}

	err := s.Send(context.Background(), Message{To: "lucia@example.com", ToName: "Lucía", Subject: "Hola", Body: "cuerpo"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(d.sent))
	}
	if got := d.sent[0].GetHeader("Subject"); len(got) != 1 || got[0] != "Hola" {
		t.Fatalf("unexpected subject %v", got)
	}
	if got := d.sent[0].GetHeader("To"); len(got) != 1 || !strings.Contains(got[0], "lucia@example.com") {
		t.Fatalf("unexpected to %v", got)
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	s := &SMTPSender{dialer: &captureDialer{err: errors.New("connection refused")}, from: "a@b"}
	if err := s.Send(context.Background(), Message{To: "x@y", Subject: "s"}); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
	if err := s.Send(context.Background(), Message{Subject: "s"}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "x@y"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
