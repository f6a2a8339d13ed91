package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-booking/internal/api"
	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/notify"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
	"github.com/hackgods/telemedicine-booking/internal/store/memstore"
)

// Sunday; the following day is Monday 2026-01-05.
var fixedNow = time.Date(2026, time.January, 4, 12, 0, 0, 0, time.UTC)

type published struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *published) Dispatch(ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *published) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Kind
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type testServer struct {
	handler http.Handler
	events  *published
	doctor  uuid.UUID
	patient uuid.UUID
}

func newTestServer(t *testing.T, checks ...api.Check) *testServer {
	t.Helper()

	store := memstore.New()
	ts := &testServer{events: &published{}, doctor: uuid.New(), patient: uuid.New()}
	store.RegisterDoctor(ts.doctor)
	store.RegisterPatient(ts.patient)

	clock := func() time.Time { return fixedNow }
	logger := zerolog.Nop()
	resolver := availability.NewResolver(store, store, time.UTC)
	locker := redisclient.NewLocalLocker(redisclient.LockOptions{Retries: 100, RetryDelay: 5 * time.Millisecond})

	ts.handler = api.NewRouter(api.RouterConfig{
		Appointments: appointment.NewService(store, store, resolver, locker, logger, appointment.WithClock(clock)),
		Availability: availability.NewService(store, store, time.UTC, logger).WithClock(clock),
		Resolver:     resolver,
		Events:       ts.events,
		Checks:       checks,
		Logger:       logger,
		Location:     time.UTC,
		Now:          clock,
		Env:          "test",
		Version:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) mondayRule(t *testing.T) api.RuleResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/availability/recurring", api.CreateRuleRequest{
		DoctorID:  ts.doctor.String(),
		DayOfWeek: int(time.Monday),
		StartTime: "09:00",
		EndTime:   "12:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.RuleResponse](t, rec)
}

func (ts *testServer) book(t *testing.T, start time.Time) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, http.MethodPost, "/appointments", api.BookAppointmentRequest{
		DoctorID:  ts.doctor.String(),
		PatientID: ts.patient.String(),
		DateTime:  start,
		Reason:    "checkup",
	})
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	rule := ts.mondayRule(t)
	assert.Equal(t, "09:00", rule.StartTime)
	assert.Equal(t, "AVAILABLE", rule.Status)

	nine := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	rec := ts.book(t, nine)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "SCHEDULED", appt.Status)
	assert.Equal(t, "VIDEO", appt.Mode)
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.Equal(t, nine.Add(30*time.Minute), appt.EndTime)

	rec = ts.book(t, nine.Add(15*time.Minute))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_conflict", decode[api.ErrorResponse](t, rec).Error)

	rec = ts.book(t, nine.Add(30*time.Minute))
	require.Equal(t, http.StatusCreated, rec.Code, "adjacent booking is allowed")

	actor := uuid.New().String()
	path := "/appointments/" + appt.ID.String()

	rec = ts.do(t, http.MethodPut, path+"/confirm", nil, "X-Actor-ID", actor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", decode[api.AppointmentResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPut, path+"/confirm", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[api.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPut, path+"/cancel", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reason_required", decode[api.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPut, path+"/cancel?reason=travel", nil, "X-Actor-ID", actor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, "travel", cancelled.CancelledReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, actor, cancelled.CancelledBy.String())

	rec = ts.book(t, nine.Add(15*time.Minute))
	require.Equal(t, http.StatusConflict, rec.Code, "09:30 booking still overlaps")

	rec = ts.book(t, nine)
	assert.Equal(t, http.StatusCreated, rec.Code, "cancelled interval can be rebooked")

	assert.Equal(t, []notify.Kind{
		notify.KindBooked, notify.KindBooked, notify.KindConfirmed, notify.KindCancelled, notify.KindBooked,
	}, ts.events.kinds())
}

func TestCompleteAndRate(t *testing.T) {
	ts := newTestServer(t)
	ts.mondayRule(t)

	rec := ts.book(t, time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC))
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/appointments/" + decode[api.AppointmentResponse](t, rec).ID.String()

	rec = ts.do(t, http.MethodPut, path+"/rating", api.RatingRequest{Rating: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[api.ErrorResponse](t, rec).Error)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, path+"/confirm", nil).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, path+"/start", nil).Code)

	followUp := time.Date(2026, time.January, 19, 10, 0, 0, 0, time.UTC)
	rec = ts.do(t, http.MethodPut, path+"/complete", api.CompleteRequest{Notes: "rest", FollowUpDate: &followUp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "COMPLETED", done.Status)
	assert.True(t, done.FollowUpRequired)

	rec = ts.do(t, http.MethodPut, path+"/rating", api.RatingRequest{Rating: 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_rating", decode[api.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPut, path+"/rating", api.RatingRequest{Rating: 4, Review: "helpful"})
	require.Equal(t, http.StatusOK, rec.Code)
	rated := decode[api.AppointmentResponse](t, rec)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
}

func TestBookingErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.mondayRule(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "outside availability",
			body:   api.BookAppointmentRequest{DoctorID: ts.doctor.String(), PatientID: ts.patient.String(), DateTime: time.Date(2026, time.January, 5, 13, 0, 0, 0, time.UTC)},
			status: http.StatusBadRequest,
			code:   "not_available",
		},
		{
			name:   "unknown doctor",
			body:   api.BookAppointmentRequest{DoctorID: uuid.NewString(), PatientID: ts.patient.String(), DateTime: time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)},
			status: http.StatusNotFound,
			code:   "doctor_not_found",
		},
		{
			name:   "malformed doctor id",
			body:   api.BookAppointmentRequest{DoctorID: "nope", PatientID: ts.patient.String()},
			status: http.StatusBadRequest,
			code:   "invalid_doctor_id",
		},
		{
			name:   "unknown mode",
			body:   api.BookAppointmentRequest{DoctorID: ts.doctor.String(), PatientID: ts.patient.String(), Mode: "carrier-pigeon"},
			status: http.StatusBadRequest,
			code:   "invalid_mode",
		},
		{
			name:   "unknown field",
			body:   map[string]any{"doctor": ts.doctor.String()},
			status: http.StatusBadRequest,
			code:   "invalid_request_body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/appointments", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, rec).Error)
		})
	}

	rec := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.mondayRule(t)

	for _, hhmm := range []int{9, 10, 11} {
		require.Equal(t, http.StatusCreated, ts.book(t, time.Date(2026, time.January, 5, hhmm, 0, 0, 0, time.UTC)).Code)
	}

	rec := ts.do(t, http.MethodGet, "/appointments?doctor="+ts.doctor.String()+"&size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[api.AppointmentPageResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].DateTime.After(page.Items[1].DateTime), "newest first")

	rec = ts.do(t, http.MethodGet, "/appointments?status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[api.AppointmentPageResponse](t, rec).Total)

	rec = ts.do(t, http.MethodGet, "/appointments?status=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/upcoming?patient="+ts.patient.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[[]api.AppointmentResponse](t, rec)
	require.Len(t, upcoming, 3)
	assert.True(t, upcoming[0].DateTime.Before(upcoming[1].DateTime), "soonest first")

	rec = ts.do(t, http.MethodGet, "/appointments/upcoming", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/today?doctor="+ts.doctor.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.AppointmentResponse](t, rec), "nothing booked on Sunday")
}

func TestAvailabilityEndpoints(t *testing.T) {
	ts := newTestServer(t)
	rule := ts.mondayRule(t)

	rec := ts.do(t, http.MethodPost, "/availability/adhoc", api.CreateSlotRequest{
		DoctorID:  ts.doctor.String(),
		StartTime: time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, time.January, 6, 16, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[api.SlotResponse](t, rec)
	assert.Equal(t, "AVAILABLE", slot.Status)

	rec = ts.do(t, http.MethodGet, "/availability/doctor/"+ts.doctor.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[[]api.DayAvailabilityResponse](t, rec)
	require.Len(t, days, 7)
	assert.Equal(t, "2026-01-04", days[0].Date)
	assert.Empty(t, days[0].Windows)
	require.Len(t, days[1].Windows, 1)
	assert.Equal(t, "rule", days[1].Windows[0].Source)
	require.Len(t, days[2].Windows, 1)
	assert.Equal(t, "slot", days[2].Windows[0].Source)

	rec = ts.do(t, http.MethodGet, "/availability/slots/"+ts.doctor.String()+"?date=2026-01-05", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.SlotAvailabilityResponse](t, rec), 6)

	rec = ts.do(t, http.MethodGet, "/availability/doctor/"+ts.doctor.String()+"?from=2026-01-01&to=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "range longer than the limit")

	rec = ts.do(t, http.MethodGet, "/availability/recurring?doctor="+ts.doctor.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RuleResponse](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/availability/adhoc?doctor="+ts.doctor.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.SlotResponse](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, "/availability/"+rule.ID.String()+"?doctor="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other doctors cannot delete")

	rec = ts.do(t, http.MethodDelete, "/availability/"+rule.ID.String()+"?doctor="+ts.doctor.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/availability/"+slot.ID.String()+"?doctor="+ts.doctor.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/availability/"+slot.ID.String()+"?doctor="+ts.doctor.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuleValidationOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/availability/recurring", api.CreateRuleRequest{
		DoctorID: ts.doctor.String(), DayOfWeek: 1, StartTime: "9am", EndTime: "12:00",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start_time", decode[api.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/availability/recurring", api.CreateRuleRequest{
		DoctorID: ts.doctor.String(), DayOfWeek: 1, StartTime: "12:00", EndTime: "09:00",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_rule", decode[api.ErrorResponse](t, rec).Error)
}

func TestHealth(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	ts := newTestServer(t, api.Check{Name: "postgres", Critical: true, Ping: up}, api.Check{Name: "redis", Ping: down})
	rec := ts.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[api.ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["redis"])

	ts = newTestServer(t, api.Check{Name: "postgres", Critical: true, Ping: down})
	rec = ts.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
