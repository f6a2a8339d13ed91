// Package metrics holds the Prometheus collectors of the booking engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
)

const namespace = "telemed"

var (
	bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Booking attempts by outcome.",
	}, []string{"outcome"})

	bookingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_duration_seconds",
		Help:      "Time spent in the booking path, lock wait included.",
		Buckets:   prometheus.DefBuckets,
	})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Lifecycle transitions by name and outcome.",
	}, []string{"transition", "outcome"})

	lockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "doctor_lock_wait_seconds",
		Help:      "Time spent acquiring the per doctor lock.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"acquired"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification publishes by event kind and outcome.",
	}, []string{"event", "outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Outcome labels err by its error kind, or "ok" when err is nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

func ObserveBooking(err error, d time.Duration) {
	bookings.WithLabelValues(Outcome(err)).Inc()
	bookingDuration.Observe(d.Seconds())
}

func ObserveTransition(transition string, err error) {
	transitions.WithLabelValues(transition, Outcome(err)).Inc()
}

func ObserveLockWait(acquired bool, d time.Duration) {
	lockWait.WithLabelValues(strconv.FormatBool(acquired)).Observe(d.Seconds())
}

func ObserveNotification(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	notifications.WithLabelValues(event, outcome).Inc()
}

func ObserveHTTP(route, method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
