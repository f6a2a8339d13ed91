package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
	"github.com/hackgods/telemedicine-booking/internal/metrics"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentRated     = "APPOINTMENT_RATED"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var tracer = otel.Tracer("github.com/hackgods/telemedicine-booking/internal/appointment")

// WindowResolver is the read side of the availability package used while
// booking.
type WindowResolver interface {
	Resolve(ctx context.Context, doctorID uuid.UUID, date interval.Date) ([]availability.Window, error)
	ResolveEmergency(ctx context.Context, doctorID uuid.UUID, date interval.Date) ([]availability.Window, error)
	Location() *time.Location
}

type Service struct {
	repo     Repository
	identity Identity
	resolver WindowResolver
	locker   redisclient.Locker
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces the time source used to stamp records and reject
// bookings in the past.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, identity Identity, resolver WindowResolver, locker redisclient.Locker, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		identity: identity,
		resolver: resolver,
		locker:   locker,
		log:      logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookRequest struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Start           time.Time
	DurationMinutes int
	Mode            Mode
	Fee             int64
	Reason          string
	Symptoms        string
	Notes           string
	PaymentRef      string
	// Emergency books against emergency reserved ad hoc slots only.
	Emergency bool
}

func (r *BookRequest) normalize() error {
	if r.DoctorID == uuid.Nil {
		return apperr.Wrap(ErrInvalidRequest, "doctor_id is required")
	}
	if r.PatientID == uuid.Nil {
		return apperr.Wrap(ErrInvalidRequest, "patient_id is required")
	}
	if r.Start.IsZero() {
		return apperr.Wrap(ErrInvalidRequest, "date_time is required")
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = DefaultDurationMinutes
	}
	if r.DurationMinutes < 0 {
		return apperr.Wrap(ErrInvalidRequest, "duration must be positive")
	}
	if r.Mode == "" {
		r.Mode = ModeVideo
	}
	mode, err := ParseMode(string(r.Mode))
	if err != nil {
		return apperr.Wrap(ErrInvalidRequest, "%v", err)
	}
	r.Mode = mode
	if r.Fee < 0 {
		return apperr.Wrap(ErrInvalidRequest, "fee must not be negative")
	}
	return nil
}

// Book creates a SCHEDULED appointment if the requested interval lies
// inside a resolved window and overlaps no active appointment of the
// doctor. Resolution, the overlap check and the write run while the
// doctor's schedule is held exclusively.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Book", trace.WithAttributes(
		attribute.String("doctor.id", req.DoctorID.String()),
		attribute.String("patient.id", req.PatientID.String()),
		attribute.Bool("emergency", req.Emergency),
	))
	defer span.End()

	started := time.Now()
	appt, err := s.book(ctx, req)
	metrics.ObserveBooking(err, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err))
		s.log.Info().
			Str("doctor_id", req.DoctorID.String()).
			Str("patient_id", req.PatientID.String()).
			Time("start", req.Start).
			Str("code", apperr.CodeOf(err)).
			Msg("booking rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("start", appt.DateTime).
		Int("duration_minutes", appt.DurationMinutes).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := s.ensureParticipants(ctx, req.DoctorID, req.PatientID); err != nil {
		return nil, err
	}

	now := s.now()
	if req.Start.Before(now) {
		return nil, apperr.Wrap(ErrStartInPast, "cannot book %s, it is in the past", req.Start.Format(time.RFC3339))
	}

	requested, err := interval.OfDuration(req.Start, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidRequest, "%v", err)
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, req.DoctorID, func(lockCtx context.Context) error {
		return s.repo.WithDoctorTx(lockCtx, req.DoctorID, func(txCtx context.Context, tx BookingTx) error {
			window, err := s.pickWindow(txCtx, req, requested)
			if err != nil {
				return err
			}

			existing, err := tx.ActiveOverlapping(txCtx, req.DoctorID, requested)
			if err != nil {
				return apperr.Infra("check overlapping appointments", err)
			}
			if len(existing) > 0 {
				return apperr.Wrap(ErrConflict, "requested time overlaps appointment %s", existing[0].ID)
			}

			appt := &Appointment{
				ID:              uuid.New(),
				PatientID:       req.PatientID,
				DoctorID:        req.DoctorID,
				DateTime:        req.Start,
				DurationMinutes: req.DurationMinutes,
				Mode:            req.Mode,
				Status:          StatusScheduled,
				Fee:             req.Fee,
				Reason:          req.Reason,
				Symptoms:        req.Symptoms,
				Notes:           req.Notes,
				Emergency:       req.Emergency,
				PaymentRef:      req.PaymentRef,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if window.Source == availability.SourceSlot {
				slotID := window.SourceID
				appt.SlotID = &slotID
			}

			if err := tx.InsertAppointment(txCtx, appt); err != nil {
				return apperr.Infra("insert appointment", err)
			}
			if appt.SlotID != nil {
				from := availability.SlotAvailable
				if req.Emergency {
					from = availability.SlotEmergency
				}
				if err := tx.ClaimSlot(txCtx, *appt.SlotID, from, appt.ID, now); err != nil {
					return apperr.Infra("claim ad hoc slot", err)
				}
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContention
		}
		return nil, apperr.Infra("book appointment", err)
	}

	payload := map[string]any{
		"doctor_id":        created.DoctorID.String(),
		"patient_id":       created.PatientID.String(),
		"date_time":        created.DateTime,
		"duration_minutes": created.DurationMinutes,
		"emergency":        created.Emergency,
	}
	if created.SlotID != nil {
		payload["slot_id"] = created.SlotID.String()
	}
	s.logEvent(ctx, created.ID, &created.PatientID, EventAppointmentBooked, payload)

	return created, nil
}

func (s *Service) ensureParticipants(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, err := s.identity.DoctorExists(ctx, doctorID)
	if err != nil {
		return apperr.Infra("check doctor", err)
	}
	if !ok {
		return apperr.Wrap(ErrDoctorNotFound, "doctor %s not found", doctorID)
	}

	ok, err = s.identity.PatientExists(ctx, patientID)
	if err != nil {
		return apperr.Infra("check patient", err)
	}
	if !ok {
		return apperr.Wrap(ErrPatientNotFound, "patient %s not found", patientID)
	}
	return nil
}

// pickWindow returns the first resolved window containing requested.
// Recurring rule windows are tried before ad hoc slots.
func (s *Service) pickWindow(ctx context.Context, req BookRequest, requested interval.Interval) (availability.Window, error) {
	date := interval.DateOf(req.Start, s.resolver.Location())

	var (
		windows []availability.Window
		err     error
	)
	if req.Emergency {
		windows, err = s.resolver.ResolveEmergency(ctx, req.DoctorID, date)
	} else {
		windows, err = s.resolver.Resolve(ctx, req.DoctorID, date)
	}
	if err != nil {
		return availability.Window{}, err
	}

	for _, source := range []availability.Source{availability.SourceRule, availability.SourceSlot} {
		for _, w := range windows {
			if w.Source == source && interval.Contains(w.Interval, requested) {
				return w, nil
			}
		}
	}
	return availability.Window{}, apperr.Wrap(ErrNotAvailable,
		"doctor %s is not available %s-%s on %s", req.DoctorID,
		interval.ClockOf(requested.Start, s.resolver.Location()),
		interval.ClockOf(requested.End, s.resolver.Location()), date)
}

// Lifecycle

func (s *Service) Confirm(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionConfirm, Change{ActorID: optionalID(actorID)})
}

// Start marks a confirmed consultation as in progress.
func (s *Service) Start(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionStart, Change{ActorID: optionalID(actorID)})
}

// Cancel requires a reason. A linked ad hoc slot becomes bookable again.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		metrics.ObserveTransition(string(TransitionCancel), ErrReasonRequired)
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, id, TransitionCancel, Change{ActorID: optionalID(actorID), CancelReason: reason})
}

// Complete closes a confirmed or in progress appointment. followUp, when
// set, flags the appointment for a follow-up visit on that date.
func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID, notes string, followUp *time.Time) (*Appointment, error) {
	return s.transition(ctx, id, TransitionComplete, Change{
		ActorID:         optionalID(actorID),
		CompletionNotes: strings.TrimSpace(notes),
		FollowUpDate:    followUp,
	})
}

// NoShow records that the patient did not attend.
func (s *Service) NoShow(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, TransitionNoShow, Change{ActorID: optionalID(actorID)})
}

var transitionEvents = map[Transition]string{
	TransitionConfirm:  EventAppointmentConfirmed,
	TransitionStart:    EventAppointmentStarted,
	TransitionCancel:   EventAppointmentCancelled,
	TransitionComplete: EventAppointmentCompleted,
	TransitionNoShow:   EventAppointmentNoShow,
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, t Transition, ch Change) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment."+string(t), trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	updated, err := s.applyTransition(ctx, id, t, ch)
	metrics.ObserveTransition(string(t), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.CodeOf(err))
		return nil, err
	}

	payload := map[string]any{"status": updated.Status}
	switch t {
	case TransitionCancel:
		payload["reason"] = updated.CancelledReason
		if updated.SlotID != nil {
			payload["released_slot_id"] = updated.SlotID.String()
		}
	case TransitionComplete:
		if updated.FollowUpDate != nil {
			payload["follow_up_date"] = updated.FollowUpDate
		}
	}
	s.logEvent(ctx, updated.ID, ch.ActorID, transitionEvents[t], payload)

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("transition", string(t)).
		Str("status", string(updated.Status)).
		Msg("appointment transitioned")
	return updated, nil
}

func (s *Service) applyTransition(ctx context.Context, id uuid.UUID, t Transition, ch Change) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, apperr.Infra("load appointment", err)
	}

	to, err := Next(current.Status, t)
	if err != nil {
		return nil, err
	}
	if ch.FollowUpDate != nil && !ch.FollowUpDate.After(current.DateTime) {
		return nil, apperr.Wrap(ErrInvalidRequest, "follow-up date must be after the appointment")
	}

	ch.To = to
	ch.At = s.now()
	updated, err := s.repo.ApplyTransition(ctx, id, current.Status, ch)
	if err != nil {
		return nil, apperr.Infra("apply transition", err)
	}
	return updated, nil
}

// Rate stores a 1-5 rating and optional review on a completed appointment.
// Rating again replaces the previous values.
func (s *Service) Rate(ctx context.Context, id, actorID uuid.UUID, rating int, review string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	updated, err := s.repo.SetRating(ctx, id, rating, strings.TrimSpace(review), s.now())
	if err != nil {
		return nil, apperr.Infra("rate appointment", err)
	}
	s.logEvent(ctx, id, optionalID(actorID), EventAppointmentRated, map[string]any{"rating": rating})
	return updated, nil
}

// Reads

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, apperr.Infra("get appointment", err)
	}
	return appt, nil
}

// ListQuery pages through appointments, newest first. Page is zero based.
type ListQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	Page      int
	Size      int
}

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	if q.Size <= 0 {
		q.Size = defaultPageSize
	}
	if q.Size > maxPageSize {
		q.Size = maxPageSize
	}
	if q.Page < 0 {
		q.Page = 0
	}

	page, err := s.repo.ListAppointments(ctx, ListFilter{
		DoctorID:  q.DoctorID,
		PatientID: q.PatientID,
		Statuses:  q.Statuses,
		Limit:     q.Size,
		Offset:    q.Page * q.Size,
	})
	if err != nil {
		return Page{}, apperr.Infra("list appointments", err)
	}
	return page, nil
}

// Upcoming returns active appointments starting at or after now, soonest
// first.
func (s *Service) Upcoming(ctx context.Context, doctorID, patientID *uuid.UUID, now time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	page, err := s.repo.ListAppointments(ctx, ListFilter{
		DoctorID:  doctorID,
		PatientID: patientID,
		Statuses:  ActiveStatuses,
		From:      &now,
		Ascending: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, apperr.Infra("list upcoming appointments", err)
	}
	return page.Items, nil
}

// Today returns the doctor's appointments on the calendar day containing
// now, in the deployment timezone.
func (s *Service) Today(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]Appointment, error) {
	day := interval.DateOf(now, s.resolver.Location()).Span(s.resolver.Location())
	page, err := s.repo.ListAppointments(ctx, ListFilter{
		DoctorID:  &doctorID,
		From:      &day.Start,
		To:        &day.End,
		Ascending: true,
	})
	if err != nil {
		return nil, apperr.Infra("list today's appointments", err)
	}
	return page.Items, nil
}

// DueReminders returns confirmed appointments starting within five minutes
// either side of now+lead.
func (s *Service) DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]Appointment, error) {
	from := now.Add(lead - 5*time.Minute)
	to := now.Add(lead + 5*time.Minute)
	page, err := s.repo.ListAppointments(ctx, ListFilter{
		Statuses:  []Status{StatusConfirmed},
		From:      &from,
		To:        &to,
		Ascending: true,
	})
	if err != nil {
		return nil, apperr.Infra("list due reminders", err)
	}
	return page.Items, nil
}

func (s *Service) FollowUpsDue(ctx context.Context, now time.Time) ([]Appointment, error) {
	due, err := s.repo.ListFollowUpsDue(ctx, now)
	if err != nil {
		return nil, apperr.Infra("list follow-ups due", err)
	}
	return due, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, actorID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		ActorID:       actorID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().
			Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
