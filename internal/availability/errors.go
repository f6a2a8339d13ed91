package availability

import "github.com/hackgods/telemedicine-booking/internal/apperr"

var (
	ErrDoctorNotFound       = apperr.New(apperr.NotFound, "doctor_not_found", "doctor not found")
	ErrRuleNotFound         = apperr.New(apperr.NotFound, "rule_not_found", "recurring rule not found")
	ErrSlotNotFound         = apperr.New(apperr.NotFound, "slot_not_found", "ad hoc slot not found")
	ErrAvailabilityNotFound = apperr.New(apperr.NotFound, "availability_not_found", "availability not found")
	ErrInvalidRule          = apperr.New(apperr.InvalidRequest, "invalid_rule", "invalid recurring rule")
	ErrInvalidSlot          = apperr.New(apperr.InvalidRequest, "invalid_slot", "invalid ad hoc slot")
	ErrInvalidRange         = apperr.New(apperr.InvalidRequest, "invalid_range", "invalid date range")
	ErrOverlappingSlot      = apperr.New(apperr.Conflict, "overlapping_slot", "slot overlaps an existing ad hoc slot")
	ErrSlotContention       = apperr.New(apperr.Conflict, "slot_contention", "doctor schedule is being changed concurrently, please retry")
	ErrSlotNotDeletable     = apperr.New(apperr.Conflict, "slot_not_deletable", "booked slots cannot be deleted")
)
