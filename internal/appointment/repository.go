package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

// Identity validates references to entities owned by the profile services.
type Identity interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Change describes the fields written by a lifecycle transition.
type Change struct {
	To              Status
	At              time.Time
	ActorID         *uuid.UUID
	CancelReason    string
	CompletionNotes string
	FollowUpDate    *time.Time
}

// BookingTx is the write surface available while a doctor's schedule is
// held exclusively. Nothing is visible to other callers until the
// enclosing WithDoctorTx returns nil.
type BookingTx interface {
	// ActiveOverlapping returns the non-terminal appointments of doctorID
	// overlapping iv.
	ActiveOverlapping(ctx context.Context, doctorID uuid.UUID, iv interval.Interval) ([]Appointment, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	// ClaimSlot links slotID to appointmentID if the slot is still in
	// status from. It returns ErrSlotTaken otherwise.
	ClaimSlot(ctx context.Context, slotID uuid.UUID, from availability.SlotStatus, appointmentID uuid.UUID, at time.Time) error
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) (Page, error)
	// ListFollowUpsDue returns completed appointments whose follow-up date
	// is at or before now.
	ListFollowUpsDue(ctx context.Context, now time.Time) ([]Appointment, error)

	// WithDoctorTx runs fn with the schedule of doctorID serialized against
	// every other WithDoctorTx call for the same doctor.
	WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error

	// ApplyTransition moves an appointment from status from to ch.To. It
	// returns ErrStaleStatus when the stored status is no longer from.
	// Cancelling releases the linked ad hoc slot in the same unit of work.
	ApplyTransition(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Appointment, error)
	// SetRating records a rating on a completed appointment.
	SetRating(ctx context.Context, id uuid.UUID, rating int, review string, at time.Time) (*Appointment, error)

	// ActiveIntervals reports the intervals held by non-terminal
	// appointments of doctorID overlapping within.
	ActiveIntervals(ctx context.Context, doctorID uuid.UUID, within interval.Interval) ([]interval.Interval, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ReleasedSlotStatus is the status an ad hoc slot returns to when the
// appointment holding it is cancelled.
func ReleasedSlotStatus(a Appointment) availability.SlotStatus {
	if a.Emergency {
		return availability.SlotEmergency
	}
	return availability.SlotAvailable
}
