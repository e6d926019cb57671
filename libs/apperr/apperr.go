// Package apperr carries the error taxonomy shared by handlers and domain code.
// Message is the client facing text (Spanish); Err keeps the developer detail
// that is logged but never returned to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnprocessable
	KindUnavailable
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches developer detail to a copy of e.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func Validation(message string, fields map[string]string) *Error {
	if message == "" {
		message = "Los datos enviados no son válidos."
	}
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Fields: fields}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "No autorizado. Inicia sesión para continuar."}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "No tienes permiso para realizar esta acción."
	}
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Recurso no encontrado."
	}
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(message string) *Error {
	if message == "" {
		message = "La operación entra en conflicto con el estado actual."
	}
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: message}
}

func Unprocessable(message string) *Error {
	return &Error{Kind: KindUnprocessable, Code: "NOT_AVAILABLE", Message: message}
}

func Unavailable(message string) *Error {
	if message == "" {
		message = "Servicio no disponible temporalmente."
	}
	return &Error{Kind: KindUnavailable, Code: "SERVICE_UNAVAILABLE", Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "Error interno del servidor.", Err: err}
}

// From returns the *Error in err's chain, or an internal error wrapping err.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
