package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/goccy/go-json"
)

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err using its apperr kind. Server side failures are
// logged with full detail; the client only sees the generic message.
func WriteError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	e := apperr.From(err)
	status := e.Kind.Status()
	if logger != nil {
		attrs := []any{"request_id", RequestIDFromContext(ctx), "code", e.Code, "err", err}
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "request failed", attrs...)
		} else {
			logger.DebugContext(ctx, "request rejected", attrs...)
		}
	}
	WriteJSON(w, status, errorBody{
		Error:     e.Code,
		Message:   e.Message,
		Fields:    e.Fields,
		RequestID: RequestIDFromContext(ctx),
	})
}

// DecodeJSON reads a JSON body into dst and runs its validate tags.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("El cuerpo de la solicitud es obligatorio.", nil)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("El cuerpo de la solicitud es obligatorio.", nil).Wrap(err)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("El cuerpo de la solicitud es demasiado grande.", nil).Wrap(err)
		}
		return apperr.Validation("JSON inválido.", nil).Wrap(err)
	}
	return apperr.ValidateStruct(dst)
}
