package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/interval"
)

const DefaultDurationMinutes = 30

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// ActiveStatuses are the statuses whose appointments hold their interval.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return false
	}
	return false
}

type Mode string

const (
	ModeVideo   Mode = "VIDEO"
	ModeOffline Mode = "OFFLINE"
	ModeTele    Mode = "TELE"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(s))
	switch m {
	case ModeVideo, ModeOffline, ModeTele:
		return m, nil
	}
	return "", fmt.Errorf("unknown consultation mode %q", s)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	DateTime        time.Time
	DurationMinutes int
	Mode            Mode
	Status          Status
	Fee             int64 // minor currency units
	Reason          string
	Symptoms        string
	Notes           string

	SlotID    *uuid.UUID
	Emergency bool

	CancelledReason string
	CancelledBy     *uuid.UUID
	CancelledAt     *time.Time

	CompletedAt      *time.Time
	CompletionNotes  string
	FollowUpRequired bool
	FollowUpDate     *time.Time

	Rating *int
	Review string

	PaymentRef      string
	PrescriptionRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) EndTime() time.Time {
	return a.DateTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Interval() interval.Interval {
	return interval.Interval{Start: a.DateTime, End: a.EndTime()}
}

// Participants returns the doctor and patient ids.
func (a Appointment) Participants() []uuid.UUID {
	return []uuid.UUID{a.DoctorID, a.PatientID}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter selects appointments for the read paths. Nil or empty fields
// do not constrain the result. From and To bound DateTime as [From, To).
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	From      *time.Time
	To        *time.Time
	Ascending bool
	Limit     int
	Offset    int
}

type Page struct {
	Items []Appointment
	Total int
}
