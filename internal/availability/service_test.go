package availability_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
)

func TestCreateRuleValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	from := monday
	until := monday.AddDays(-1)

	tests := []struct {
		name string
		req  availability.CreateRuleRequest
	}{
		{"bad weekday", availability.CreateRuleRequest{DayOfWeek: 7, Start: clock(t, "09:00"), End: clock(t, "10:00")}},
		{"end before start", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "10:00"), End: clock(t, "09:00")}},
		{"empty window", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "10:00"), End: clock(t, "10:00")}},
		{"negative capacity", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00"), Capacity: -1}},
		{"slot longer than window", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "09:20"), SlotMinutes: 30}},
		{"unknown status", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00"), Status: "MAYBE"}},
		{"inverted effective range", availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00"), EffectiveFrom: &from, EffectiveUntil: &until}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.DoctorID = e.doctor
			_, err := e.svc.CreateRule(ctx, tt.req)
			assert.ErrorIs(t, err, availability.ErrInvalidRule)
			assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
		})
	}

	_, err := e.svc.CreateRule(ctx, availability.CreateRuleRequest{
		DoctorID: uuid.New(), DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00"),
	})
	assert.ErrorIs(t, err, availability.ErrDoctorNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCreateRuleDefaults(t *testing.T) {
	e := newEnv(t)
	r := e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Friday, Start: clock(t, "09:00"), End: clock(t, "17:00")})
	assert.Equal(t, availability.DefaultCapacity, r.Capacity)
	assert.Equal(t, availability.DefaultSlotMinutes, r.SlotMinutes)
	assert.Equal(t, availability.RuleAvailable, r.Status)
	assert.Equal(t, now, r.CreatedAt)
}

func TestCreateSlotValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateSlot(ctx, availability.CreateSlotRequest{DoctorID: e.doctor, Start: at(monday, "10:00"), End: at(monday, "10:00")})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)

	_, err = e.svc.CreateSlot(ctx, availability.CreateSlotRequest{DoctorID: e.doctor, Start: at(monday, "23:30"), End: at(monday.AddDays(1), "00:30")})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)

	_, err = e.svc.CreateSlot(ctx, availability.CreateSlotRequest{DoctorID: e.doctor, Start: at(monday, "10:00"), End: at(monday, "10:30"), Status: availability.SlotBooked})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)

	e.slot(t, at(monday, "10:00"), at(monday, "11:00"), availability.SlotAvailable)
	_, err = e.svc.CreateSlot(ctx, availability.CreateSlotRequest{DoctorID: e.doctor, Start: at(monday, "10:30"), End: at(monday, "11:30")})
	assert.ErrorIs(t, err, availability.ErrOverlappingSlot)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	adjacent := e.slot(t, at(monday, "11:00"), at(monday, "11:30"), availability.SlotBlocked)
	assert.Equal(t, availability.SlotBlocked, adjacent.Status)
}

func TestDeleteOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := uuid.New()
	e.store.RegisterDoctor(other)

	r := e.rule(t, availability.CreateRuleRequest{DayOfWeek: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")})
	s := e.slot(t, at(monday, "15:00"), at(monday, "15:30"), availability.SlotAvailable)

	assert.ErrorIs(t, e.svc.Delete(ctx, other, r.ID), availability.ErrAvailabilityNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, other, s.ID), availability.ErrAvailabilityNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, e.doctor, uuid.New()), availability.ErrAvailabilityNotFound)

	require.NoError(t, e.svc.Delete(ctx, e.doctor, r.ID))
	require.NoError(t, e.svc.Delete(ctx, e.doctor, s.ID))

	rules, err := e.svc.ListRules(ctx, e.doctor)
	require.NoError(t, err)
	assert.Empty(t, rules)

	slots, err := e.svc.ListSlots(ctx, e.doctor, monday, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)

	assert.ErrorIs(t, e.svc.Delete(ctx, e.doctor, r.ID), availability.ErrAvailabilityNotFound)
}

func TestListSlotsRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.slot(t, at(monday, "09:00"), at(monday, "09:30"), availability.SlotAvailable)
	e.slot(t, at(monday.AddDays(1), "09:00"), at(monday.AddDays(1), "09:30"), availability.SlotBlocked)
	e.slot(t, at(monday.AddDays(2), "09:00"), at(monday.AddDays(2), "09:30"), availability.SlotAvailable)

	slots, err := e.svc.ListSlots(ctx, e.doctor, monday, monday.AddDays(1))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Before(slots[1].Start))

	_, err = e.svc.ListSlots(ctx, e.doctor, monday.AddDays(1), monday)
	assert.ErrorIs(t, err, availability.ErrInvalidRange)
}

func TestDeleteBlockedAndEmergencySlots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	blocked := e.slot(t, at(monday, "09:00"), at(monday, "09:30"), availability.SlotBlocked)
	emergency := e.slot(t, at(monday, "10:00"), at(monday, "10:30"), availability.SlotEmergency)

	require.NoError(t, e.svc.Delete(ctx, e.doctor, blocked.ID))
	require.NoError(t, e.svc.Delete(ctx, e.doctor, emergency.ID))

	slots, err := e.svc.ListSlots(ctx, e.doctor, monday, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestConcurrentOverlappingSlots(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const callers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			offset := time.Duration(i%3) * 10 * time.Minute
			_, err := e.svc.CreateSlot(ctx, availability.CreateSlotRequest{
				DoctorID: e.doctor,
				Start:    at(monday, "14:00").Add(offset),
				End:      at(monday, "15:00").Add(offset),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case apperr.KindOf(err) == apperr.Conflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, conflicts)
	slots, err := e.svc.ListSlots(ctx, e.doctor, monday, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

type busyLocker struct{}

func (busyLocker) WithDoctorLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCreateSlotLockContention(t *testing.T) {
	e := newEnv(t)
	e.svc.WithLocker(busyLocker{})

	_, err := e.svc.CreateSlot(context.Background(), availability.CreateSlotRequest{
		DoctorID: e.doctor,
		Start:    at(monday, "14:00"),
		End:      at(monday, "15:00"),
	})
	assert.ErrorIs(t, err, availability.ErrSlotContention)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}
