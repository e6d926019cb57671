package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromWrapsUnknownErrors(t *testing.T) {
	err := From(errors.New("boom"))
	if err.Kind != KindInternal || err.Kind.Status() != http.StatusInternalServerError {
		t.Fatalf("unexpected %+v", err)
	}
	if err.Message != "Error interno del servidor." {
		t.Fatalf("internal detail must not leak, got %q", err.Message)
	}
}

func TestFromFindsWrappedError(t *testing.T) {
	base := Conflict("Ese horario ya está reservado.")
	wrapped := fmt.Errorf("book: %w", base)
	if got := From(wrapped); got != base {
		t.Fatalf("expected original error, got %+v", got)
	}
	if !Is(wrapped, KindConflict) || KindOf(wrapped).Status() != http.StatusConflict {
		t.Fatal("expected conflict kind")
	}
}

func TestWrapKeepsOriginalUntouched(t *testing.T) {
	base := NotFound("")
	cause := errors.New("no rows")
	w := base.Wrap(cause)
	if base.Err != nil {
		t.Fatal("Wrap must copy")
	}
	if !errors.Is(w, cause) {
		t.Fatal("expected cause in chain")
	}
}

type bookingInput struct {
	TherapistID string `json:"therapistId" validate:"required,uuid"`
	Date        string `json:"date" validate:"required,isodate"`
	StartTime   string `json:"startTime" validate:"required,clock"`
	Role        string `json:"role" validate:"omitempty,oneof=CLIENT THERAPIST"`
}

func TestValidateStructFieldDetail(t *testing.T) {
	err := ValidateStruct(bookingInput{
		TherapistID: "nope",
		Date:        "2026-13-01",
		StartTime:   "9am",
		Role:        "ADMIN",
	})
	e := From(err)
	if e.Kind != KindValidation {
		t.Fatalf("expected validation error, got %+v", e)
	}
	want := map[string]string{
		"therapistId": "debe ser un identificador válido",
		"date":        "debe tener el formato AAAA-MM-DD",
		"startTime":   "debe tener el formato HH:MM",
		"role":        "debe ser uno de: CLIENT, THERAPIST",
	}
	for field, msg := range want {
		if e.Fields[field] != msg {
			t.Fatalf("field %s: got %q want %q", field, e.Fields[field], msg)
		}
	}
}

func TestValidateStructOK(t *testing.T) {
	err := ValidateStruct(bookingInput{
		TherapistID: "2b1f7a4e-8f5c-4d3b-9a55-0c0a4f7d6c11",
		Date:        "2026-03-02",
		StartTime:   "09:00",
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
