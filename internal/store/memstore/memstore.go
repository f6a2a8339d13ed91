// Package memstore keeps availability declarations and appointments in
// process memory. It serves single node deployments and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

type ruleEntry struct {
	rule    availability.RecurringRule
	seq     int64
	deleted bool
}

type Store struct {
	mu       sync.RWMutex
	seq      int64
	doctors  map[uuid.UUID]struct{}
	patients map[uuid.UUID]struct{}
	rules    map[uuid.UUID]*ruleEntry
	slots    map[uuid.UUID]availability.AdhocSlot
	appts    map[uuid.UUID]appointment.Appointment
	events   []appointment.EventLog

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

func New() *Store {
	return &Store{
		doctors:  make(map[uuid.UUID]struct{}),
		patients: make(map[uuid.UUID]struct{}),
		rules:    make(map[uuid.UUID]*ruleEntry),
		slots:    make(map[uuid.UUID]availability.AdhocSlot),
		appts:    make(map[uuid.UUID]appointment.Appointment),
		locks:    make(map[uuid.UUID]chan struct{}),
	}
}

// Identity

func (s *Store) RegisterDoctor(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[id] = struct{}{}
}

func (s *Store) RegisterPatient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[id] = struct{}{}
}

func (s *Store) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.doctors[id]
	return ok, nil
}

func (s *Store) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.patients[id]
	return ok, nil
}

// Recurring rules

func (s *Store) CreateRule(_ context.Context, r *availability.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.rules[r.ID] = &ruleEntry{rule: *r, seq: s.seq}
	return nil
}

func (s *Store) GetRule(_ context.Context, id uuid.UUID) (*availability.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rules[id]
	if !ok || e.deleted {
		return nil, availability.ErrRuleNotFound
	}
	r := e.rule
	return &r, nil
}

func (s *Store) ListRules(_ context.Context, doctorID uuid.UUID) ([]availability.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*ruleEntry
	for _, e := range s.rules {
		if e.deleted || e.rule.DoctorID != doctorID {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]availability.RecurringRule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out, nil
}

func (s *Store) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rules[id]
	if !ok || e.deleted {
		return availability.ErrRuleNotFound
	}
	e.deleted = true
	return nil
}

// Ad hoc slots

func (s *Store) CreateSlot(_ context.Context, sl *availability.AdhocSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sl.ID] = *sl
	return nil
}

func (s *Store) GetSlot(_ context.Context, id uuid.UUID) (*availability.AdhocSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, availability.ErrSlotNotFound
	}
	return &sl, nil
}

func (s *Store) ListSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.AdhocSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []availability.AdhocSlot
	for _, sl := range s.slots {
		if sl.DoctorID != doctorID || sl.Start.Before(from) || !sl.Start.Before(to) {
			continue
		}
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteUnbookedSlot(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return availability.ErrSlotNotFound
	}
	if sl.Status == availability.SlotBooked || sl.AppointmentID != nil {
		return availability.ErrSlotNotDeletable
	}
	delete(s.slots, id)
	return nil
}

// Appointments

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func matches(a appointment.Appointment, f appointment.ListFilter) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if len(f.Statuses) > 0 && !hasStatus(f.Statuses, a.Status) {
		return false
	}
	if f.From != nil && a.DateTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.DateTime.Before(*f.To) {
		return false
	}
	return true
}

func hasStatus(statuses []appointment.Status, st appointment.Status) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s *Store) ListAppointments(_ context.Context, f appointment.ListFilter) (appointment.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []appointment.Appointment
	for _, a := range s.appts {
		if matches(a, f) {
			items = append(items, a)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].DateTime.Equal(items[j].DateTime) {
			if f.Ascending {
				return items[i].DateTime.Before(items[j].DateTime)
			}
			return items[i].DateTime.After(items[j].DateTime)
		}
		return items[i].ID.String() < items[j].ID.String()
	})

	total := len(items)
	if f.Limit > 0 {
		start := min(f.Offset, total)
		end := min(start+f.Limit, total)
		items = items[start:end]
	}
	return appointment.Page{Items: items, Total: total}, nil
}

func (s *Store) ListFollowUpsDue(_ context.Context, now time.Time) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.Status != appointment.StatusCompleted || !a.FollowUpRequired || a.FollowUpDate == nil {
			continue
		}
		if a.FollowUpDate.After(now) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FollowUpDate.Before(*out[j].FollowUpDate) })
	return out, nil
}

func (s *Store) ActiveIntervals(_ context.Context, doctorID uuid.UUID, within interval.Interval) ([]interval.Interval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeIntervalsLocked(doctorID, within), nil
}

func (s *Store) activeIntervalsLocked(doctorID uuid.UUID, within interval.Interval) []interval.Interval {
	var out []interval.Interval
	for _, a := range s.activeOverlappingLocked(doctorID, within) {
		out = append(out, a.Interval())
	}
	return out
}

func (s *Store) activeOverlappingLocked(doctorID uuid.UUID, iv interval.Interval) []appointment.Appointment {
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.DoctorID != doctorID || a.Status.Terminal() {
			continue
		}
		if interval.Overlaps(a.Interval(), iv) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out
}

func (s *Store) ApplyTransition(_ context.Context, id uuid.UUID, from appointment.Status, ch appointment.Change) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, apperr.Wrap(appointment.ErrStaleStatus, "appointment %s moved from %s to %s", id, from, a.Status)
	}

	a.Status = ch.To
	a.UpdatedAt = ch.At
	switch ch.To {
	case appointment.StatusCancelled:
		at := ch.At
		a.CancelledReason = ch.CancelReason
		a.CancelledBy = ch.ActorID
		a.CancelledAt = &at
	case appointment.StatusCompleted:
		at := ch.At
		a.CompletedAt = &at
		a.CompletionNotes = ch.CompletionNotes
	}
	if ch.FollowUpDate != nil {
		fu := *ch.FollowUpDate
		a.FollowUpRequired = true
		a.FollowUpDate = &fu
	}

	if a.Status == appointment.StatusCancelled && a.SlotID != nil {
		if sl, ok := s.slots[*a.SlotID]; ok && sl.AppointmentID != nil && *sl.AppointmentID == a.ID {
			sl.Status = appointment.ReleasedSlotStatus(a)
			sl.AppointmentID = nil
			sl.UpdatedAt = ch.At
			s.slots[sl.ID] = sl
		}
	}

	s.appts[id] = a
	return &a, nil
}

func (s *Store) SetRating(_ context.Context, id uuid.UUID, rating int, review string, at time.Time) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != appointment.StatusCompleted {
		return nil, apperr.Wrap(appointment.ErrInvalidStatus, "only completed appointments can be rated")
	}
	r := rating
	a.Rating = &r
	a.Review = review
	a.UpdatedAt = at
	s.appts[id] = a
	return &a, nil
}

func (s *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev.ID = s.seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the recorded audit events, oldest first.
func (s *Store) Events() []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]appointment.EventLog(nil), s.events...)
}
