package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, time.Second, zerolog.Nop())

	a := appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Status:    appointment.StatusScheduled,
		DateTime:  time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
	d.Dispatch(EventFor(KindBooked, a, time.Now()))
	d.Dispatch(EventFor(KindConfirmed, a, time.Now()))

	require.NoError(t, d.Wait(context.Background()))
	events := rec.Events()
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []uuid.UUID{a.DoctorID, a.PatientID}, events[0].Participants)
	assert.Equal(t, a.ID, events[0].AppointmentID)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	d := NewDispatcher(rec, time.Second, zerolog.Nop())

	d.Dispatch(Event{Kind: KindCancelled, AppointmentID: uuid.New()})
	assert.NoError(t, d.Wait(context.Background()))
	assert.Len(t, rec.Events(), 1)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindConfirmed, KindFor(appointment.TransitionConfirm))
	assert.Equal(t, KindStarted, KindFor(appointment.TransitionStart))
	assert.Equal(t, KindCancelled, KindFor(appointment.TransitionCancel))
	assert.Equal(t, KindCompleted, KindFor(appointment.TransitionComplete))
	assert.Equal(t, KindNoShow, KindFor(appointment.TransitionNoShow))
}

func TestSubject(t *testing.T) {
	n := NewNatsNotifier(nil, "")
	assert.Equal(t, "telemed.appointment.reminder", n.Subject(KindReminder))
}
