package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
)

type BookAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id"`
	PatientID       string    `json:"patient_id"`
	DateTime        time.Time `json:"date_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Mode            string    `json:"mode"`
	Fee             int64     `json:"fee"`
	Reason          string    `json:"reason"`
	Symptoms        string    `json:"symptoms"`
	Notes           string    `json:"notes"`
	PaymentRef      string    `json:"payment_ref"`
	Emergency       bool      `json:"emergency"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	Notes        string     `json:"notes"`
	FollowUpDate *time.Time `json:"follow_up_date"`
}

type RatingRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	DateTime         time.Time  `json:"date_time"`
	EndTime          time.Time  `json:"end_time"`
	DurationMinutes  int        `json:"duration_minutes"`
	Mode             string     `json:"mode"`
	Status           string     `json:"status"`
	Fee              int64      `json:"fee"`
	Reason           string     `json:"reason,omitempty"`
	Symptoms         string     `json:"symptoms,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	SlotID           *uuid.UUID `json:"slot_id,omitempty"`
	Emergency        bool       `json:"emergency"`
	CancelledReason  string     `json:"cancelled_reason,omitempty"`
	CancelledBy      *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletionNotes  string     `json:"completion_notes,omitempty"`
	FollowUpRequired bool       `json:"follow_up_required"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
	Rating           *int       `json:"rating,omitempty"`
	Review           string     `json:"review,omitempty"`
	PaymentRef       string     `json:"payment_ref,omitempty"`
	PrescriptionRef  string     `json:"prescription_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		PatientID:        a.PatientID,
		DoctorID:         a.DoctorID,
		DateTime:         a.DateTime,
		EndTime:          a.EndTime(),
		DurationMinutes:  a.DurationMinutes,
		Mode:             string(a.Mode),
		Status:           string(a.Status),
		Fee:              a.Fee,
		Reason:           a.Reason,
		Symptoms:         a.Symptoms,
		Notes:            a.Notes,
		SlotID:           a.SlotID,
		Emergency:        a.Emergency,
		CancelledReason:  a.CancelledReason,
		CancelledBy:      a.CancelledBy,
		CancelledAt:      a.CancelledAt,
		CompletedAt:      a.CompletedAt,
		CompletionNotes:  a.CompletionNotes,
		FollowUpRequired: a.FollowUpRequired,
		FollowUpDate:     a.FollowUpDate,
		Rating:           a.Rating,
		Review:           a.Review,
		PaymentRef:       a.PaymentRef,
		PrescriptionRef:  a.PrescriptionRef,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return out
}

type AppointmentPageResponse struct {
	Items []AppointmentResponse `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
}

// CreateRuleRequest uses 0 (Sunday) to 6 (Saturday) for day_of_week,
// HH:MM for times and YYYY-MM-DD for dates.
type CreateRuleRequest struct {
	DoctorID       string `json:"doctor_id"`
	DayOfWeek      int    `json:"day_of_week"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Capacity       int    `json:"capacity"`
	SlotMinutes    int    `json:"slot_minutes"`
	Status         string `json:"status"`
	EffectiveFrom  string `json:"effective_from"`
	EffectiveUntil string `json:"effective_until"`
	Note           string `json:"note"`
}

type CreateSlotRequest struct {
	DoctorID    string    `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	BlockReason string    `json:"block_reason"`
}

type RuleResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	DayOfWeek      int       `json:"day_of_week"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Capacity       int       `json:"capacity"`
	SlotMinutes    int       `json:"slot_minutes"`
	Status         string    `json:"status"`
	EffectiveFrom  string    `json:"effective_from,omitempty"`
	EffectiveUntil string    `json:"effective_until,omitempty"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toRuleResponse(r *availability.RecurringRule) RuleResponse {
	resp := RuleResponse{
		ID:          r.ID,
		DoctorID:    r.DoctorID,
		DayOfWeek:   int(r.DayOfWeek),
		StartTime:   r.Start.String(),
		EndTime:     r.End.String(),
		Capacity:    r.Capacity,
		SlotMinutes: r.SlotMinutes,
		Status:      string(r.Status),
		Note:        r.Note,
		CreatedAt:   r.CreatedAt,
	}
	if r.EffectiveFrom != nil {
		resp.EffectiveFrom = r.EffectiveFrom.String()
	}
	if r.EffectiveUntil != nil {
		resp.EffectiveUntil = r.EffectiveUntil.String()
	}
	return resp
}

type SlotResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	BlockReason   string     `json:"block_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toSlotResponse(s *availability.AdhocSlot) SlotResponse {
	return SlotResponse{
		ID:            s.ID,
		DoctorID:      s.DoctorID,
		StartTime:     s.Start,
		EndTime:       s.End,
		Status:        string(s.Status),
		AppointmentID: s.AppointmentID,
		BlockReason:   s.BlockReason,
		CreatedAt:     s.CreatedAt,
	}
}

type WindowResponse struct {
	Source      string    `json:"source"`
	SourceID    uuid.UUID `json:"source_id"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Capacity    int       `json:"capacity"`
	Remaining   int       `json:"remaining"`
	SlotMinutes int       `json:"slot_minutes"`
	Emergency   bool      `json:"emergency,omitempty"`
}

type DayAvailabilityResponse struct {
	Date    string           `json:"date"`
	Windows []WindowResponse `json:"windows"`
}

func toDayResponse(d availability.DayWindows) DayAvailabilityResponse {
	resp := DayAvailabilityResponse{Date: d.Date.String(), Windows: make([]WindowResponse, 0, len(d.Windows))}
	for _, w := range d.Windows {
		resp.Windows = append(resp.Windows, WindowResponse{
			Source:      string(w.Source),
			SourceID:    w.SourceID,
			StartTime:   w.Start.String(),
			EndTime:     w.End.String(),
			Start:       w.Interval.Start,
			End:         w.Interval.End,
			Capacity:    w.Capacity,
			Remaining:   w.Remaining,
			SlotMinutes: w.SlotMinutes,
			Emergency:   w.Emergency,
		})
	}
	return resp
}

type SlotAvailabilityResponse struct {
	Source    string    `json:"source"`
	SourceID  uuid.UUID `json:"source_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
