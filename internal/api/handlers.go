package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/notify"
)

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, ok := parseID(req.DoctorID)
	if !ok {
		badRequest(w, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	patientID, ok := parseID(req.PatientID)
	if !ok {
		badRequest(w, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	var mode appointment.Mode
	if req.Mode != "" {
		m, err := appointment.ParseMode(req.Mode)
		if err != nil {
			badRequest(w, "invalid_mode", err.Error())
			return
		}
		mode = m
	}

	appt, err := h.appts.Book(r.Context(), appointment.BookRequest{
		DoctorID:        doctorID,
		PatientID:       patientID,
		Start:           req.DateTime,
		DurationMinutes: req.DurationMinutes,
		Mode:            mode,
		Fee:             req.Fee,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		Notes:           req.Notes,
		PaymentRef:      req.PaymentRef,
		Emergency:       req.Emergency,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	h.events.Dispatch(notify.EventFor(notify.KindBooked, *appt, h.now()))
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid_appointment_id", "id must be a valid UUID")
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, patientID, ok := participantFilter(w, r)
	if !ok {
		return
	}

	q := appointment.ListQuery{DoctorID: doctorID, PatientID: patientID}
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			st, err := appointment.ParseStatus(part)
			if err != nil {
				badRequest(w, "invalid_status", err.Error())
				return
			}
			q.Statuses = append(q.Statuses, st)
		}
	}

	var err error
	if q.Page, err = queryInt(r, "page", 0); err != nil {
		badRequest(w, "invalid_page", "page must be an integer")
		return
	}
	if q.Size, err = queryInt(r, "size", 0); err != nil {
		badRequest(w, "invalid_size", "size must be an integer")
		return
	}

	page, err := h.appts.List(r.Context(), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AppointmentPageResponse{
		Items: toAppointmentResponses(page.Items),
		Total: page.Total,
		Page:  q.Page,
	})
}

func (h *handlers) upcomingAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, patientID, ok := participantFilter(w, r)
	if !ok {
		return
	}
	if doctorID == nil && patientID == nil {
		badRequest(w, "missing_participant", "doctor or patient is required")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		badRequest(w, "invalid_limit", "limit must be an integer")
		return
	}

	items, err := h.appts.Upcoming(r.Context(), doctorID, patientID, h.now(), limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(items))
}

func (h *handlers) todayAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryUUID(r, "doctor")
	if err != nil || doctorID == nil {
		badRequest(w, "invalid_doctor_id", "doctor must be a valid UUID")
		return
	}
	items, err := h.appts.Today(r.Context(), *doctorID, h.now())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(items))
}

type transitionFunc func(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error)

// transition runs a lifecycle operation on the appointment in the path and
// publishes kind on success.
func (h *handlers) transition(w http.ResponseWriter, r *http.Request, kind notify.Kind, fn transitionFunc) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid_appointment_id", "id must be a valid UUID")
		return
	}
	actor, ok := actorID(r)
	if !ok {
		badRequest(w, "invalid_actor_id", actorHeader+" must be a valid UUID")
		return
	}

	appt, err := fn(r.Context(), id, actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if kind != "" {
		h.events.Dispatch(notify.EventFor(kind, *appt, h.now()))
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, notify.KindFor(appointment.TransitionConfirm), h.appts.Confirm)
}

func (h *handlers) startAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, notify.KindFor(appointment.TransitionStart), h.appts.Start)
}

func (h *handlers) noShowAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, notify.KindFor(appointment.TransitionNoShow), h.appts.NoShow)
}

// cancelAppointment takes the reason from the JSON body or the reason
// query parameter.
func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = r.URL.Query().Get("reason")
	}

	h.transition(w, r, notify.KindFor(appointment.TransitionCancel), func(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error) {
		return h.appts.Cancel(ctx, id, actor, req.Reason)
	})
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}

	h.transition(w, r, notify.KindFor(appointment.TransitionComplete), func(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error) {
		return h.appts.Complete(ctx, id, actor, req.Notes, req.FollowUpDate)
	})
}

func (h *handlers) rateAppointment(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}

	h.transition(w, r, "", func(ctx context.Context, id, actor uuid.UUID) (*appointment.Appointment, error) {
		return h.appts.Rate(ctx, id, actor, req.Rating, req.Review)
	})
}

// participantFilter reads the optional doctor and patient query parameters.
func participantFilter(w http.ResponseWriter, r *http.Request) (doctorID, patientID *uuid.UUID, ok bool) {
	doctorID, err := queryUUID(r, "doctor")
	if err != nil {
		badRequest(w, "invalid_doctor_id", "doctor must be a valid UUID")
		return nil, nil, false
	}
	patientID, err = queryUUID(r, "patient")
	if err != nil {
		badRequest(w, "invalid_patient_id", "patient must be a valid UUID")
		return nil, nil, false
	}
	return doctorID, patientID, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
