package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/appointments"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

var errBookForOthers = apperr.Forbidden("Solo un administrador puede reservar en nombre de otro cliente.")

func (a *API) ListAppointments(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	role := auth.Role(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("role"))))
	if role == "" {
		role = auth.RoleClient
		if p.Role == auth.RoleTherapist {
			role = auth.RoleTherapist
		}
	}

	var (
		list []model.AppointmentDetail
		err  error
	)
	switch role {
	case auth.RoleClient:
		list, err = a.store.ListForClient(r.Context(), p.UserID)
	case auth.RoleTherapist:
		if p.Role != auth.RoleTherapist && !p.IsAdmin() {
			a.fail(w, r, apperr.Forbidden(""))
			return
		}
		list, err = a.store.ListForTherapist(r.Context(), p.UserID)
	default:
		a.fail(w, r, apperr.Validation("role debe ser CLIENT o THERAPIST", map[string]string{"role": "debe ser uno de: CLIENT, THERAPIST"}))
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDetailViews(list, a.loc))
}

func (a *API) ListAllAppointments(w http.ResponseWriter, r *http.Request) {
	status := model.AppointmentStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "", model.StatusPending, model.StatusConfirmed, model.StatusCancelled:
	default:
		a.fail(w, r, apperr.Validation("status no es válido", map[string]string{"status": "debe ser uno de: PENDING, CONFIRMED, CANCELLED"}))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := a.store.ListAll(r.Context(), status, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDetailViews(list, a.loc))
}

type createAppointmentRequest struct {
	ClientID    string `json:"clientId" validate:"omitempty,uuid"`
	TherapistID string `json:"therapistId" validate:"required,uuid"`
	ServiceID   string `json:"serviceId" validate:"required,uuid"`
	Date        string `json:"date" validate:"required,isodate"`
	StartTime   string `json:"startTime" validate:"required,clock"`
	EndTime     string `json:"endTime" validate:"required"`
	Notes       string `json:"notes" validate:"max=1000"`
}

// bookingClient resolves on whose behalf the caller books.
func bookingClient(p auth.Principal, requested string) (string, error) {
	if requested == "" || requested == p.UserID {
		return p.UserID, nil
	}
	if !p.IsAdmin() {
		return "", errBookForOthers
	}
	return requested, nil
}

func (a *API) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	clientID, err := bookingClient(caller(r), req.ClientID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	date, err := availability.ParseDate(req.Date, a.loc)
	if err != nil {
		a.fail(w, r, apperr.Validation("date debe tener el formato AAAA-MM-DD", nil).Wrap(err))
		return
	}
	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if end <= start {
		a.fail(w, r, appointments.ErrInvalidWindow)
		return
	}

	appt, err := a.booking.Book(r.Context(), appointments.BookRequest{
		ClientID:    clientID,
		TherapistID: req.TherapistID,
		TherapyID:   req.ServiceID,
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentView(appt, a.loc))
}

type bookAppointmentRequest struct {
	TherapyID   string `json:"therapyId" validate:"required,uuid"`
	TherapistID string `json:"therapistId" validate:"required,uuid"`
	ScheduledAt string `json:"scheduledAt" validate:"required"`
	Notes       string `json:"notes" validate:"max=1000"`
}

// BookAppointment is the older entry point taking a single start instant;
// the end is derived from the therapy duration.
func (a *API) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		a.fail(w, r, apperr.Validation("scheduledAt debe ser una fecha ISO 8601", map[string]string{"scheduledAt": "debe ser una fecha ISO 8601"}).Wrap(err))
		return
	}
	local := at.In(a.loc)
	if local.Second() != 0 || local.Nanosecond() != 0 {
		a.fail(w, r, apperr.Validation("scheduledAt debe caer en un minuto exacto", map[string]string{"scheduledAt": "no es válido"}))
		return
	}

	appt, err := a.booking.Book(r.Context(), appointments.BookRequest{
		ClientID:    caller(r).UserID,
		TherapistID: req.TherapistID,
		TherapyID:   req.TherapyID,
		Date:        local,
		StartMinute: local.Hour()*60 + local.Minute(),
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentView(appt, a.loc))
}

type confirmRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
}

func (a *API) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	appt, err := a.booking.Confirm(r.Context(), caller(r), req.AppointmentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentView(appt, a.loc))
}

type cancelRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
	Reason        string `json:"reason" validate:"max=500"`
}

func (a *API) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	appt, err := a.booking.Cancel(r.Context(), caller(r), req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentView(appt, a.loc))
}
