package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Booked("created")
	m.Booked("created")
	m.Booked("conflict")
	m.Cancelled(true)
	m.Confirmed()

	if got := testutil.ToFloat64(m.bookings.WithLabelValues("created")); got != 2 {
		t.Fatalf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bookings.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("conflict = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cancellations.WithLabelValues("true")); got != 1 {
		t.Fatalf("cancellations with fee = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.confirmations); got != 1 {
		t.Fatalf("confirmations = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveSlotResolution(3 * time.Millisecond)
	m.NotificationFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"zen_slot_resolution_seconds_count 1", "zen_notifications_failed_total 1"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}
