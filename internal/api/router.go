package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/metrics"
	"github.com/hackgods/telemedicine-booking/internal/notify"
)

// EventPublisher receives appointment events after successful writes.
type EventPublisher interface {
	Dispatch(ev notify.Event)
}

type discardEvents struct{}

func (discardEvents) Dispatch(notify.Event) {}

type RouterConfig struct {
	Appointments *appointment.Service
	Availability *availability.Service
	Resolver     *availability.Resolver
	Events       EventPublisher
	Checks       []Check
	Logger       zerolog.Logger
	Location     *time.Location
	Now          func() time.Time
	Env          string
	Version      string
}

type handlers struct {
	appts    *appointment.Service
	avail    *availability.Service
	resolver *availability.Resolver
	events   EventPublisher
	loc      *time.Location
	now      func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{
		appts:    cfg.Appointments,
		avail:    cfg.Availability,
		resolver: cfg.Resolver,
		events:   cfg.Events,
		loc:      cfg.Location,
		now:      cfg.Now,
	}
	if h.events == nil {
		h.events = discardEvents{}
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.bookAppointment)
		r.Get("/", h.listAppointments)
		r.Get("/upcoming", h.upcomingAppointments)
		r.Get("/today", h.todayAppointments)
		r.Get("/{id}", h.getAppointment)
		r.Put("/{id}/confirm", h.confirmAppointment)
		r.Put("/{id}/start", h.startAppointment)
		r.Put("/{id}/cancel", h.cancelAppointment)
		r.Put("/{id}/complete", h.completeAppointment)
		r.Put("/{id}/no-show", h.noShowAppointment)
		r.Put("/{id}/rating", h.rateAppointment)
	})

	r.Route("/availability", func(r chi.Router) {
		r.Post("/recurring", h.createRule)
		r.Get("/recurring", h.listRules)
		r.Post("/adhoc", h.createSlot)
		r.Get("/adhoc", h.listSlots)
		r.Get("/doctor/{id}", h.doctorAvailability)
		r.Get("/slots/{id}", h.doctorSlots)
		r.Delete("/{id}", h.deleteAvailability)
	})

	return r
}
