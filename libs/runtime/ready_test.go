package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestReadyzReportsFailures(t *testing.T) {
	r := chi.NewRouter()
	MountHealth(r,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
		ReadyCheck{Name: "kafka"},
	)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis: down") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "kafka") {
		t.Fatalf("nil check should be skipped, body %q", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	r := chi.NewRouter()
	MountHealth(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG").String() != "DEBUG" {
		t.Fatal("expected debug level")
	}
	if parseLevel("nonsense").String() != "INFO" {
		t.Fatal("expected info fallback")
	}
}
