package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records booking outcomes. It satisfies the recorder interfaces of
// the appointments and availability packages.
type Metrics struct {
	registry            *prometheus.Registry
	bookings            *prometheus.CounterVec
	cancellations       *prometheus.CounterVec
	confirmations       prometheus.Counter
	notificationsFailed prometheus.Counter
	slotResolution      prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		bookings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zen_bookings_total",
			Help: "Booking attempts by result (created, conflict, rejected).",
		}, []string{"result"}),
		cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zen_cancellations_total",
			Help: "Cancellations, split by whether a fee was charged.",
		}, []string{"fee"}),
		confirmations: f.NewCounter(prometheus.CounterOpts{
			Name: "zen_confirmations_total",
			Help: "Appointments moved to CONFIRMED.",
		}),
		notificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "zen_notifications_failed_total",
			Help: "Notifications that could not be stored or delivered.",
		}),
		slotResolution: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zen_slot_resolution_seconds",
			Help:    "Time spent resolving the slots of one therapist day.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (m *Metrics) Booked(result string) { m.bookings.WithLabelValues(result).Inc() }

func (m *Metrics) Confirmed() { m.confirmations.Inc() }

func (m *Metrics) Cancelled(withFee bool) {
	m.cancellations.WithLabelValues(strconv.FormatBool(withFee)).Inc()
}

func (m *Metrics) NotificationFailed() { m.notificationsFailed.Inc() }

func (m *Metrics) ObserveSlotResolution(d time.Duration) {
	m.slotResolution.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
