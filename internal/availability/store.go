package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/interval"
)

// Store holds the availability declarations of doctors.
type Store interface {
	CreateRule(ctx context.Context, r *RecurringRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*RecurringRule, error)
	// ListRules returns the live rules of a doctor in creation order.
	ListRules(ctx context.Context, doctorID uuid.UUID) ([]RecurringRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	CreateSlot(ctx context.Context, s *AdhocSlot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*AdhocSlot, error)
	// ListSlots returns slots whose start lies in [from, to), ordered by start.
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AdhocSlot, error)
	// DeleteUnbookedSlot removes a slot unless an appointment holds it.
	DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error
}

// Occupancy reports the intervals already held by non-terminal
// appointments of a doctor.
type Occupancy interface {
	ActiveIntervals(ctx context.Context, doctorID uuid.UUID, within interval.Interval) ([]interval.Interval, error)
}

// DoctorDirectory is the part of the identity collaborator this package needs.
type DoctorDirectory interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}
