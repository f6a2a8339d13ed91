package appointment

import "github.com/hackgods/telemedicine-booking/internal/apperr"

var (
	ErrDoctorNotFound      = apperr.New(apperr.NotFound, "doctor_not_found", "doctor not found")
	ErrPatientNotFound     = apperr.New(apperr.NotFound, "patient_not_found", "patient not found")
	ErrAppointmentNotFound = apperr.New(apperr.NotFound, "appointment_not_found", "appointment not found")

	ErrNotAvailable = apperr.New(apperr.NotAvailable, "not_available", "requested time is outside the doctor's availability")
	ErrStartInPast  = apperr.New(apperr.NotAvailable, "start_in_past", "requested time is in the past")

	ErrConflict          = apperr.New(apperr.Conflict, "appointment_conflict", "requested time overlaps an existing appointment")
	ErrSlotTaken         = apperr.New(apperr.Conflict, "slot_taken", "ad hoc slot is no longer available")
	ErrBookingContention = apperr.New(apperr.Conflict, "booking_contention", "doctor is being booked concurrently, please retry")

	ErrInvalidStatus = apperr.New(apperr.InvalidStatus, "invalid_status", "invalid status transition")
	ErrStaleStatus   = apperr.New(apperr.InvalidStatus, "stale_status", "appointment status changed concurrently")

	ErrInvalidRequest = apperr.New(apperr.InvalidRequest, "invalid_request", "invalid request")
	ErrReasonRequired = apperr.New(apperr.InvalidRequest, "reason_required", "cancellation reason is required")
	ErrInvalidRating  = apperr.New(apperr.InvalidRequest, "invalid_rating", "rating must be between 1 and 5")
)
