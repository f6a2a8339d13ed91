package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/interval"
)

const (
	DefaultCapacity    = 1
	DefaultSlotMinutes = 30
)

type RuleStatus string

const (
	RuleAvailable          RuleStatus = "AVAILABLE"
	RuleUnavailable        RuleStatus = "UNAVAILABLE"
	RuleBlocked            RuleStatus = "BLOCKED"
	RulePartiallyAvailable RuleStatus = "PARTIALLY_AVAILABLE"
)

func ParseRuleStatus(s string) (RuleStatus, error) {
	st := RuleStatus(s)
	switch st {
	case RuleAvailable, RuleUnavailable, RuleBlocked, RulePartiallyAvailable:
		return st, nil
	}
	return "", fmt.Errorf("unknown rule status %q", s)
}

// Bookable reports whether windows derived from a rule in this status may
// take bookings.
func (s RuleStatus) Bookable() bool {
	switch s {
	case RuleAvailable, RulePartiallyAvailable:
		return true
	case RuleUnavailable, RuleBlocked:
		return false
	}
	return false
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
	SlotEmergency SlotStatus = "EMERGENCY"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	st := SlotStatus(s)
	switch st {
	case SlotAvailable, SlotBooked, SlotBlocked, SlotEmergency:
		return st, nil
	}
	return "", fmt.Errorf("unknown slot status %q", s)
}

// RecurringRule is a weekly availability declaration.
type RecurringRule struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	DayOfWeek      time.Weekday
	Start          interval.Clock
	End            interval.Clock
	Capacity       int
	SlotMinutes    int
	Status         RuleStatus
	EffectiveFrom  *interval.Date
	EffectiveUntil *interval.Date
	Note           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveOn reports whether the rule applies to date d. Both effective
// bounds are inclusive and optional.
func (r RecurringRule) ActiveOn(d interval.Date) bool {
	if d.Weekday() != r.DayOfWeek {
		return false
	}
	if r.EffectiveFrom != nil && d.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && d.After(*r.EffectiveUntil) {
		return false
	}
	return true
}

// AdhocSlot is a one-off, date specific declaration.
type AdhocSlot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	Start         time.Time
	End           time.Time
	Status        SlotStatus
	AppointmentID *uuid.UUID
	BlockReason   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s AdhocSlot) Interval() interval.Interval {
	return interval.Interval{Start: s.Start, End: s.End}
}

type Source string

const (
	SourceRule Source = "rule"
	SourceSlot Source = "slot"
)

// Window is a bookable range on one date. Windows from different sources
// are never merged; each is evaluated on its own during booking.
type Window struct {
	Source      Source
	SourceID    uuid.UUID
	DoctorID    uuid.UUID
	Date        interval.Date
	Start       interval.Clock
	End         interval.Clock
	Interval    interval.Interval
	Capacity    int
	Remaining   int
	SlotMinutes int
	Emergency   bool
}

// DayWindows groups the resolved windows of one date.
type DayWindows struct {
	Date    interval.Date
	Windows []Window
}

// Slot is a granularity sized piece of a window.
type Slot struct {
	Source    Source
	SourceID  uuid.UUID
	Interval  interval.Interval
	Available bool
}
