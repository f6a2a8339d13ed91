package availability_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
	"github.com/hackgods/telemedicine-booking/internal/store/memstore"
)

var (
	// 2026-03-02 is a Monday.
	monday = interval.Date{Year: 2026, Month: time.March, Day: 2}
	now    = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
)

type env struct {
	store    *memstore.Store
	svc      *availability.Service
	resolver *availability.Resolver
	doctor   uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	doctor := uuid.New()
	store.RegisterDoctor(doctor)
	return &env{
		store:    store,
		svc:      availability.NewService(store, store, time.UTC, zerolog.Nop()).WithClock(func() time.Time { return now }),
		resolver: availability.NewResolver(store, store, time.UTC),
		doctor:   doctor,
	}
}

func clock(t *testing.T, s string) interval.Clock {
	t.Helper()
	c, err := interval.ParseClock(s)
	require.NoError(t, err)
	return c
}

func at(d interval.Date, s string) time.Time {
	c, err := interval.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return d.At(c, time.UTC)
}

func (e *env) rule(t *testing.T, req availability.CreateRuleRequest) *availability.RecurringRule {
	t.Helper()
	req.DoctorID = e.doctor
	r, err := e.svc.CreateRule(context.Background(), req)
	require.NoError(t, err)
	return r
}

func (e *env) slot(t *testing.T, start, end time.Time, status availability.SlotStatus) *availability.AdhocSlot {
	t.Helper()
	s, err := e.svc.CreateSlot(context.Background(), availability.CreateSlotRequest{
		DoctorID: e.doctor,
		Start:    start,
		End:      end,
		Status:   status,
	})
	require.NoError(t, err)
	return s
}

func TestResolveEmpty(t *testing.T) {
	e := newEnv(t)
	windows, err := e.resolver.Resolve(context.Background(), e.doctor, monday)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestResolveRespectsEffectiveRange(t *testing.T) {
	e := newEnv(t)
	until := monday
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek:      time.Monday,
		Start:          clock(t, "09:00"),
		End:            clock(t, "12:00"),
		EffectiveUntil: &until,
	})

	windows, err := e.resolver.Resolve(context.Background(), e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	windows, err = e.resolver.Resolve(context.Background(), e.doctor, monday.AddDays(7))
	require.NoError(t, err)
	assert.Empty(t, windows, "rule ends on its effective_until date")

	from := monday.AddDays(7)
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek:     time.Monday,
		Start:         clock(t, "14:00"),
		End:           clock(t, "15:00"),
		EffectiveFrom: &from,
	})
	windows, err = e.resolver.Resolve(context.Background(), e.doctor, monday)
	require.NoError(t, err)
	assert.Len(t, windows, 1, "rule starting next week is not active yet")

	windows, err = e.resolver.Resolve(context.Background(), e.doctor, from)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, clock(t, "14:00"), windows[0].Start)
}

func TestResolveOrderingAndSources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	afternoon := e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Monday, Start: clock(t, "14:00"), End: clock(t, "17:00"), Capacity: 2,
	})
	morning := e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "12:00"),
	})
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Monday, Start: clock(t, "12:00"), End: clock(t, "13:00"), Status: availability.RuleUnavailable,
	})
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Tuesday, Start: clock(t, "09:00"), End: clock(t, "12:00"),
	})
	tie := e.slot(t, at(monday, "09:00"), at(monday, "09:30"), availability.SlotAvailable)
	evening := e.slot(t, at(monday, "19:00"), at(monday, "19:30"), availability.SlotAvailable)
	e.slot(t, at(monday, "20:00"), at(monday, "20:30"), availability.SlotBlocked)
	e.slot(t, at(monday, "21:00"), at(monday, "21:30"), availability.SlotEmergency)
	e.slot(t, at(monday.AddDays(1), "19:00"), at(monday.AddDays(1), "19:30"), availability.SlotAvailable)

	windows, err := e.resolver.Resolve(ctx, e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	assert.Equal(t, morning.ID, windows[0].SourceID)
	assert.Equal(t, availability.SourceRule, windows[0].Source)
	assert.Equal(t, tie.ID, windows[1].SourceID, "slot follows rule on equal start")
	assert.Equal(t, availability.SourceSlot, windows[1].Source)
	assert.Equal(t, afternoon.ID, windows[2].SourceID)
	assert.Equal(t, 2, windows[2].Capacity)
	assert.Equal(t, 2, windows[2].Remaining)
	assert.Equal(t, evening.ID, windows[3].SourceID)

	emergency, err := e.resolver.ResolveEmergency(ctx, e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, emergency, 1)
	assert.True(t, emergency[0].Emergency)
	assert.Equal(t, clock(t, "21:00"), emergency[0].Start)
}

func TestResolveDoesNotMergeOverlappingWindows(t *testing.T) {
	e := newEnv(t)
	e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "11:00")})
	e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "10:00"), End: clock(t, "12:00")})

	windows, err := e.resolver.Resolve(context.Background(), e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, clock(t, "11:00"), windows[0].End)
	assert.Equal(t, clock(t, "10:00"), windows[1].Start)
}

func TestBlockedSlotLeavesRuleWindowIntact(t *testing.T) {
	e := newEnv(t)
	rule := e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "12:00")})
	e.slot(t, at(monday, "10:00"), at(monday, "10:30"), availability.SlotBlocked)

	windows, err := e.resolver.Resolve(context.Background(), e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, rule.ID, windows[0].SourceID)
	assert.Equal(t, clock(t, "09:00"), windows[0].Start)
	assert.Equal(t, clock(t, "12:00"), windows[0].End)
}

func TestResolveRemainingCapacity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "12:00"), Capacity: 2,
	})

	patient := uuid.New()
	seedAppointment(t, e.store, e.doctor, patient, at(monday, "09:00"))

	windows, err := e.resolver.Resolve(ctx, e.doctor, monday)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 1, windows[0].Remaining)
}

func TestResolveRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")})

	days, err := e.resolver.ResolveRange(ctx, e.doctor, monday, monday.AddDays(13))
	require.NoError(t, err)
	require.Len(t, days, 14)
	assert.Len(t, days[0].Windows, 1)
	assert.Empty(t, days[1].Windows)
	assert.Len(t, days[7].Windows, 1)

	_, err = e.resolver.ResolveRange(ctx, e.doctor, monday, monday.AddDays(-1))
	assert.ErrorIs(t, err, availability.ErrInvalidRange)

	_, err = e.resolver.ResolveRange(ctx, e.doctor, monday, monday.AddDays(availability.MaxRangeDays))
	assert.ErrorIs(t, err, availability.ErrInvalidRange)

	_, err = e.resolver.ResolveRange(ctx, e.doctor, monday, monday.AddDays(availability.MaxRangeDays-1))
	assert.NoError(t, err)
}

func TestSlots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rule(t, availability.CreateRuleRequest{
		DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "11:00"), SlotMinutes: 30,
	})
	seedAppointment(t, e.store, e.doctor, uuid.New(), at(monday, "10:00"))

	slots, err := e.resolver.Slots(ctx, e.doctor, monday, at(monday, "09:15"))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	var got []bool
	for _, s := range slots {
		got = append(got, s.Available)
	}
	// 09:00 is in the past, 10:00 is taken.
	assert.Equal(t, []bool{false, true, false, true}, got)
	assert.Equal(t, at(monday, "10:30"), slots[3].Interval.Start)
	assert.Equal(t, at(monday, "11:00"), slots[3].Interval.End)
}

func seedAppointment(t *testing.T, store *memstore.Store, doctor, patient uuid.UUID, start time.Time) {
	t.Helper()
	err := store.WithDoctorTx(context.Background(), doctor, func(ctx context.Context, tx appointment.BookingTx) error {
		return tx.InsertAppointment(ctx, &appointment.Appointment{
			ID:              uuid.New(),
			DoctorID:        doctor,
			PatientID:       patient,
			DateTime:        start,
			DurationMinutes: 30,
			Mode:            appointment.ModeVideo,
			Status:          appointment.StatusScheduled,
		})
	})
	require.NoError(t, err)
}
