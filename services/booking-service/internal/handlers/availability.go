package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/clinicazen/platform/services/booking-service/internal/storage"
)

var errAvailabilityForbidden = apperr.Forbidden("Solo el propio terapeuta o un administrador puede gestionar su disponibilidad.")

func canManage(p auth.Principal, therapistID string) error {
	if p.IsAdmin() || (p.Role == auth.RoleTherapist && p.UserID == therapistID) {
		return nil
	}
	return errAvailabilityForbidden
}

func (a *API) optionalDate(r *http.Request) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, nil
	}
	d, err := availability.ParseDate(raw, a.loc)
	if err != nil {
		return nil, apperr.Validation("date debe tener el formato AAAA-MM-DD", map[string]string{"date": "debe tener el formato AAAA-MM-DD"}).Wrap(err)
	}
	return &d, nil
}

func (a *API) ListAvailability(w http.ResponseWriter, r *http.Request) {
	therapistID, err := requireUUID("therapistId", r.URL.Query().Get("therapistId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	date, err := a.optionalDate(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rules, err := a.store.ListRules(r.Context(), therapistID, date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleViews(rules))
}

type weeklySlot struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,gte=0,lte=6"`
	StartTime string `json:"startTime" validate:"required,clock"`
	EndTime   string `json:"endTime" validate:"required"`
	IsActive  *bool  `json:"isActive"`
}

// saveAvailabilityRequest either replaces the weekly rules (slots) or
// upserts one rule pinned to specificDate.
type saveAvailabilityRequest struct {
	TherapistID  string       `json:"therapistId" validate:"required,uuid"`
	Slots        []weeklySlot `json:"slots" validate:"omitempty,dive"`
	SpecificDate string       `json:"specificDate" validate:"omitempty,isodate"`
	StartTime    string       `json:"startTime" validate:"omitempty,clock"`
	EndTime      string       `json:"endTime"`
	IsActive     *bool        `json:"isActive"`
}

func active(b *bool) bool { return b == nil || *b }

func parseWindow(start, end string) (int, int, error) {
	s, err := availability.ParseClock(start)
	if err != nil {
		return 0, 0, apperr.Validation("startTime debe tener el formato HH:MM", map[string]string{"startTime": "debe tener el formato HH:MM"}).Wrap(err)
	}
	e, err := availability.ParseClock(end)
	if err != nil {
		return 0, 0, apperr.Validation("endTime debe tener el formato HH:MM", map[string]string{"endTime": "debe tener el formato HH:MM"}).Wrap(err)
	}
	return s, e, nil
}

func ruleError(err error) error {
	return apperr.Validation("La franja horaria no es válida: "+err.Error(), map[string]string{"endTime": "debe ser posterior a startTime"}).Wrap(err)
}

func (a *API) SaveAvailability(w http.ResponseWriter, r *http.Request) {
	var req saveAvailabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := canManage(caller(r), req.TherapistID); err != nil {
		a.fail(w, r, err)
		return
	}

	if req.SpecificDate != "" {
		a.saveDateRule(w, r, req)
		return
	}

	desired := make([]model.AvailabilityRule, 0, len(req.Slots))
	for _, s := range req.Slots {
		start, end, err := parseWindow(s.StartTime, s.EndTime)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		rule := model.AvailabilityRule{
			TherapistID: req.TherapistID,
			DayOfWeek:   time.Weekday(*s.DayOfWeek),
			StartMinute: start,
			EndMinute:   end,
			Active:      active(s.IsActive),
		}
		if err := availability.Validate(rule); err != nil {
			a.fail(w, r, ruleError(err))
			return
		}
		desired = append(desired, rule)
	}

	plan, err := a.store.ReplaceWeekly(r.Context(), req.TherapistID, desired)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rules, err := a.store.ListRules(r.Context(), req.TherapistID, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.InfoContext(r.Context(), "weekly availability replaced",
		"therapist_id", req.TherapistID,
		"inserted", len(plan.Insert),
		"updated", len(plan.Update),
		"deleted", len(plan.Delete),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"inserted": len(plan.Insert),
		"updated":  len(plan.Update),
		"deleted":  len(plan.Delete),
		"rules":    toRuleViews(rules),
	})
}

func (a *API) saveDateRule(w http.ResponseWriter, r *http.Request, req saveAvailabilityRequest) {
	date, err := availability.ParseDate(req.SpecificDate, a.loc)
	if err != nil {
		a.fail(w, r, apperr.Validation("specificDate debe tener el formato AAAA-MM-DD", nil).Wrap(err))
		return
	}
	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rule := model.AvailabilityRule{
		TherapistID:  req.TherapistID,
		DayOfWeek:    date.Weekday(),
		StartMinute:  start,
		EndMinute:    end,
		Active:       active(req.IsActive),
		SpecificDate: &date,
	}
	if err := availability.Validate(rule); err != nil {
		a.fail(w, r, ruleError(err))
		return
	}
	saved, err := a.store.UpsertDateRule(r.Context(), rule)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleViews([]model.AvailabilityRule{saved})[0])
}

func (a *API) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	therapistID, err := requireUUID("therapistId", q.Get("therapistId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := canManage(caller(r), therapistID); err != nil {
		a.fail(w, r, err)
		return
	}
	start, err := availability.ParseClock(q.Get("startTime"))
	if err != nil {
		a.fail(w, r, apperr.Validation("startTime debe tener el formato HH:MM", map[string]string{"startTime": "debe tener el formato HH:MM"}).Wrap(err))
		return
	}

	ref := storage.RuleRef{TherapistID: therapistID, StartMinute: start}
	if ref.Date, err = a.optionalDate(r); err != nil {
		a.fail(w, r, err)
		return
	}
	if ref.Date == nil {
		day, convErr := strconv.Atoi(q.Get("dayOfWeek"))
		if convErr != nil || day < 0 || day > 6 {
			a.fail(w, r, apperr.Validation("Indica date o dayOfWeek (0-6).", map[string]string{"dayOfWeek": "debe estar entre 0 y 6"}))
			return
		}
		ref.DayOfWeek = time.Weekday(day)
	}

	n, err := a.store.DeleteRule(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if n == 0 {
		a.fail(w, r, apperr.NotFound("Franja de disponibilidad no encontrada."))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Slots(w http.ResponseWriter, r *http.Request) {
	therapistID, err := requireUUID("therapistId", r.URL.Query().Get("therapistId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	date, err := a.optionalDate(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if date == nil {
		a.fail(w, r, apperr.Validation("date es obligatorio", map[string]string{"date": "es obligatorio"}))
		return
	}
	slots, err := a.slots.Slots(r.Context(), therapistID, *date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}
