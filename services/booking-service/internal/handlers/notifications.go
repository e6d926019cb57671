package handlers

import (
	"net/http"
	"strconv"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/services/booking-service/internal/notify"
)

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := a.store.ListNotifications(r.Context(), caller(r).UserID, q.Get("unread") == "true", limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]notify.View, 0, len(list))
	for _, n := range list {
		out = append(out, notify.ToView(n))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type markReadRequest struct {
	IDs []string `json:"ids" validate:"omitempty,max=200,dive,uuid"`
}

// MarkNotificationsRead marks the listed notifications, or all of the
// caller's when ids is empty.
func (a *API) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.store.MarkNotificationsRead(r.Context(), caller(r).UserID, req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (a *API) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := requireUUID("id", r.URL.Query().Get("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	found, err := a.store.DeleteNotification(r.Context(), caller(r).UserID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !found {
		a.fail(w, r, apperr.NotFound("Notificación no encontrada."))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
