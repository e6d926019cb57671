package mail

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	TypeRequested = "booking.appointment.requested.v1"
	TypeConfirmed = "booking.appointment.confirmed.v1"
	TypeCancelled = "booking.appointment.cancelled.v1"
)

// Topics are the booking topics this service emails about.
var Topics = []string{TypeRequested, TypeConfirmed, TypeCancelled}

var ErrUnknownEvent = errors.New("unknown event type")

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is the booking.appointment.* payload as published by booking-service.
type Event struct {
	AppointmentID      string    `json:"appointment_id"`
	Status             string    `json:"status"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	TherapyName        string    `json:"therapy_name"`
	Client             Party     `json:"client"`
	Therapist          Party     `json:"therapist"`
	TotalAmount        string    `json:"total_amount"`
	CancellationFee    string    `json:"cancellation_fee,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
}

func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}
	if e.AppointmentID == "" || e.ScheduledAt.IsZero() {
		return Event{}, errors.New("event missing appointment_id or scheduled_at")
	}
	return e, nil
}

// Rendered is one outgoing email and the template it came from.
type Rendered struct {
	Template string
	Message  Message
}

type view struct {
	Event
	Recipient string
	Date      string
	Time      string
	Fee       string
}

type recipe struct {
	name    string
	subject string
	body    *template.Template
	to      func(Event) Party
}

func client(e Event) Party    { return e.Client }
func therapist(e Event) Party { return e.Therapist }

const signature = "\n\nUn saludo,\nClínica Zen"

var recipes = map[string][]recipe{
	TypeRequested: {
		{
			name:    "requested_client",
			subject: "Hemos recibido tu solicitud de cita",
			to:      client,
			body: template.Must(template.New("requested_client").Parse(`Hola {{.Recipient}},

Hemos recibido tu solicitud de {{.TherapyName}} con {{.Therapist.Name}} el {{.Date}} a las {{.Time}}.
Te avisaremos en cuanto quede confirmada.

Importe: {{.TotalAmount}} €` + signature)),
		},
		{
			name:    "requested_therapist",
			subject: "Nueva solicitud de cita",
			to:      therapist,
			body: template.Must(template.New("requested_therapist").Parse(`Hola {{.Recipient}},

{{.Client.Name}} ha solicitado {{.TherapyName}} el {{.Date}} a las {{.Time}}.
{{- if .Notes}}
Notas del cliente: {{.Notes}}
{{- end}}
Puedes confirmarla desde tu panel.` + signature)),
		},
	},
	TypeConfirmed: {
		{
			name:    "confirmed_client",
			subject: "Tu cita está confirmada",
			to:      client,
			body: template.Must(template.New("confirmed_client").Parse(`Hola {{.Recipient}},

Tu cita de {{.TherapyName}} con {{.Therapist.Name}} el {{.Date}} a las {{.Time}} está confirmada.
Duración: {{.DurationMinutes}} minutos.` + signature)),
		},
	},
	TypeCancelled: {
		{
			name:    "cancelled_client",
			subject: "Tu cita ha sido cancelada",
			to:      client,
			body: template.Must(template.New("cancelled_client").Parse(`Hola {{.Recipient}},

Tu cita de {{.TherapyName}} del {{.Date}} a las {{.Time}} ha sido cancelada.
Motivo: {{.CancellationReason}}
{{- if .Fee}}
Al cancelarse con menos de 24 horas de antelación se aplicará un cargo de {{.Fee}} €.
{{- end}}` + signature)),
		},
		{
			name:    "cancelled_therapist",
			subject: "Cita cancelada",
			to:      therapist,
			body: template.Must(template.New("cancelled_therapist").Parse(`Hola {{.Recipient}},

La cita de {{.TherapyName}} con {{.Client.Name}} del {{.Date}} a las {{.Time}} ha sido cancelada.
Motivo: {{.CancellationReason}}
La franja vuelve a estar disponible.` + signature)),
		},
	},
}

// Render builds the emails for one event. Parties without an email address
// are skipped.
func Render(eventType string, e Event, loc *time.Location) ([]Rendered, error) {
	rs, ok := recipes[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	if loc == nil {
		loc = time.UTC
	}
	local := e.ScheduledAt.In(loc)
	v := view{Event: e, Date: LongDate(local), Time: local.Format("15:04")}
	if fee, err := decimal.NewFromString(e.CancellationFee); err == nil && fee.IsPositive() {
		v.Fee = fee.StringFixed(2)
	}

	out := make([]Rendered, 0, len(rs))
	for _, r := range rs {
		to := r.to(e)
		if strings.TrimSpace(to.Email) == "" {
			continue
		}
		v.Recipient = to.Name
		var body strings.Builder
		if err := r.body.Execute(&body, v); err != nil {
			return nil, fmt.Errorf("render %s: %w", r.name, err)
		}
		out = append(out, Rendered{
			Template: r.name,
			Message:  Message{To: to.Email, ToName: to.Name, Subject: r.subject, Body: body.String()},
		})
	}
	return out, nil
}

var (
	weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	months   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// LongDate formats t as e.g. "lunes 2 de marzo de 2026".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%s %d de %s de %d", weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year())
}
