package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

type claim struct {
	slotID        uuid.UUID
	from          availability.SlotStatus
	appointmentID uuid.UUID
	at            time.Time
}

// memTx stages writes until the enclosing WithDoctorTx commits them.
type memTx struct {
	s        *Store
	inserted []appointment.Appointment
	claims   []claim
}

func (s *Store) doctorLock(doctorID uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[doctorID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[doctorID] = ch
	}
	return ch
}

// WithDoctorTx serializes fn against other transactions on the same doctor.
// Writes staged by fn are applied atomically when it returns nil.
func (s *Store) WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx appointment.BookingTx) error) error {
	lock := s.doctorLock(doctorID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (t *memTx) ActiveOverlapping(_ context.Context, doctorID uuid.UUID, iv interval.Interval) ([]appointment.Appointment, error) {
	t.s.mu.RLock()
	out := t.s.activeOverlappingLocked(doctorID, iv)
	t.s.mu.RUnlock()

	for _, a := range t.inserted {
		if a.DoctorID == doctorID && !a.Status.Terminal() && interval.Overlaps(a.Interval(), iv) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *appointment.Appointment) error {
	t.inserted = append(t.inserted, *a)
	return nil
}

func (t *memTx) ClaimSlot(_ context.Context, slotID uuid.UUID, from availability.SlotStatus, appointmentID uuid.UUID, at time.Time) error {
	for _, c := range t.claims {
		if c.slotID == slotID {
			return apperr.Wrap(appointment.ErrSlotTaken, "ad hoc slot %s is already claimed", slotID)
		}
	}

	t.s.mu.RLock()
	sl, ok := t.s.slots[slotID]
	t.s.mu.RUnlock()
	if !ok || sl.Status != from || sl.AppointmentID != nil {
		return apperr.Wrap(appointment.ErrSlotTaken, "ad hoc slot %s is no longer %s", slotID, from)
	}

	t.claims = append(t.claims, claim{slotID: slotID, from: from, appointmentID: appointmentID, at: at})
	return nil
}

// commit re-validates staged writes under the store lock, since ad hoc
// slots may be deleted outside the doctor lock.
func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range t.claims {
		sl, ok := s.slots[c.slotID]
		if !ok || sl.Status != c.from || sl.AppointmentID != nil {
			return apperr.Wrap(appointment.ErrSlotTaken, "ad hoc slot %s is no longer %s", c.slotID, c.from)
		}
	}
	for _, a := range t.inserted {
		if len(s.activeOverlappingLocked(a.DoctorID, a.Interval())) > 0 {
			return apperr.Wrap(appointment.ErrConflict, "requested time overlaps an existing appointment")
		}
	}

	for _, a := range t.inserted {
		s.appts[a.ID] = a
	}
	for _, c := range t.claims {
		sl := s.slots[c.slotID]
		id := c.appointmentID
		sl.Status = availability.SlotBooked
		sl.AppointmentID = &id
		sl.UpdatedAt = c.at
		s.slots[c.slotID] = sl
	}
	return nil
}
