package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/interval"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
)

type CreateRuleRequest struct {
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
}

type CreateSlotRequest struct {
	DoctorID    uuid.UUID
	Start       time.Time
	End         time.Time
	Status      SlotStatus
	BlockReason string
}

// Service manages the declarations doctors make about their availability.
type Service struct {
	store   Store
	doctors DoctorDirectory
	loc     *time.Location
	locker  redisclient.Locker
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(store Store, doctors DoctorDirectory, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:   store,
		doctors: doctors,
		loc:     loc,
		locker:  redisclient.NewLocalLocker(redisclient.LockOptions{Retries: 20}),
		log:     logger.With().Str("component", "availability").Logger(),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for record timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithLocker replaces the in-process locker that serializes slot
// declarations per doctor. Share the booking locker across nodes.
func (s *Service) WithLocker(l redisclient.Locker) *Service {
	s.locker = l
	return s
}

func (s *Service) ensureDoctor(ctx context.Context, id uuid.UUID) error {
	ok, err := s.doctors.DoctorExists(ctx, id)
	if err != nil {
		return apperr.Infra("check doctor", err)
	}
	if !ok {
		return apperr.Wrap(ErrDoctorNotFound, "doctor %s not found", id)
	}
	return nil
}

func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*RecurringRule, error) {
	if req.DayOfWeek < time.Sunday || req.DayOfWeek > time.Saturday {
		return nil, apperr.Wrap(ErrInvalidRule, "day_of_week must be 0-6")
	}
	if !req.Start.Valid() || !req.End.Valid() || req.Start >= req.End {
		return nil, apperr.Wrap(ErrInvalidRule, "start time must be before end time")
	}
	if req.Capacity == 0 {
		req.Capacity = DefaultCapacity
	}
	if req.Capacity < 0 {
		return nil, apperr.Wrap(ErrInvalidRule, "capacity must be positive")
	}
	if req.SlotMinutes == 0 {
		req.SlotMinutes = DefaultSlotMinutes
	}
	if req.SlotMinutes < 0 || req.SlotMinutes > int(req.End-req.Start) {
		return nil, apperr.Wrap(ErrInvalidRule, "slot duration must fit inside the window")
	}
	if req.Status == "" {
		req.Status = RuleAvailable
	}
	if _, err := ParseRuleStatus(string(req.Status)); err != nil {
		return nil, apperr.Wrap(ErrInvalidRule, "%v", err)
	}
	if req.EffectiveFrom != nil && req.EffectiveUntil != nil && req.EffectiveUntil.Before(*req.EffectiveFrom) {
		return nil, apperr.Wrap(ErrInvalidRule, "effective_until is before effective_from")
	}
	if err := s.ensureDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	now := s.now()
	rule := &RecurringRule{
		ID:             uuid.New(),
		DoctorID:       req.DoctorID,
		DayOfWeek:      req.DayOfWeek,
		Start:          req.Start,
		End:            req.End,
		Capacity:       req.Capacity,
		SlotMinutes:    req.SlotMinutes,
		Status:         req.Status,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
		Note:           req.Note,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, apperr.Infra("create recurring rule", err)
	}

	s.log.Info().
		Str("doctor_id", rule.DoctorID.String()).
		Str("rule_id", rule.ID.String()).
		Str("day", rule.DayOfWeek.String()).
		Str("window", rule.Start.String()+"-"+rule.End.String()).
		Msg("recurring rule created")
	return rule, nil
}

func (s *Service) CreateSlot(ctx context.Context, req CreateSlotRequest) (*AdhocSlot, error) {
	if !req.End.After(req.Start) {
		return nil, apperr.Wrap(ErrInvalidSlot, "end must be after start")
	}
	date := interval.DateOf(req.Start, s.loc)
	if req.End.After(date.AddDays(1).Midnight(s.loc)) {
		return nil, apperr.Wrap(ErrInvalidSlot, "slot must end on the day it starts")
	}
	if req.Status == "" {
		req.Status = SlotAvailable
	}
	switch req.Status {
	case SlotAvailable, SlotBlocked, SlotEmergency:
	case SlotBooked:
		return nil, apperr.Wrap(ErrInvalidSlot, "slots become booked only through an appointment")
	default:
		return nil, apperr.Wrap(ErrInvalidSlot, "unknown slot status %q", req.Status)
	}
	if err := s.ensureDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	now := s.now()
	slot := &AdhocSlot{
		ID:          uuid.New(),
		DoctorID:    req.DoctorID,
		Start:       req.Start,
		End:         req.End,
		Status:      req.Status,
		BlockReason: req.BlockReason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The overlap check and the insert run under the doctor lock.
	err := s.locker.WithDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		existing, err := s.store.ListSlots(ctx, req.DoctorID, date.Midnight(s.loc), req.End)
		if err != nil {
			return apperr.Infra("list ad hoc slots", err)
		}
		for _, e := range existing {
			if interval.Overlaps(slot.Interval(), e.Interval()) {
				return apperr.Wrap(ErrOverlappingSlot, "slot overlaps ad hoc slot %s", e.ID)
			}
		}
		if err := s.store.CreateSlot(ctx, slot); err != nil {
			return apperr.Infra("create ad hoc slot", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContention
		}
		return nil, apperr.Infra("lock doctor schedule", err)
	}

	s.log.Info().
		Str("doctor_id", slot.DoctorID.String()).
		Str("slot_id", slot.ID.String()).
		Str("status", string(slot.Status)).
		Time("start", slot.Start).
		Msg("ad hoc slot created")
	return slot, nil
}

// Delete removes a declaration owned by doctorID. Rules are looked up
// first, then slots. Declarations of other doctors are reported as missing.
func (s *Service) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	rule, err := s.store.GetRule(ctx, id)
	switch {
	case err == nil:
		if rule.DoctorID != doctorID {
			return apperr.Wrap(ErrAvailabilityNotFound, "availability %s not found", id)
		}
		if err := s.store.DeleteRule(ctx, id); err != nil {
			return apperr.Infra("delete recurring rule", err)
		}
		s.log.Info().Str("rule_id", id.String()).Msg("recurring rule deleted")
		return nil
	case !errors.Is(err, ErrRuleNotFound):
		return apperr.Infra("load recurring rule", err)
	}

	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return apperr.Wrap(ErrAvailabilityNotFound, "availability %s not found", id)
		}
		return apperr.Infra("load ad hoc slot", err)
	}
	if slot.DoctorID != doctorID {
		return apperr.Wrap(ErrAvailabilityNotFound, "availability %s not found", id)
	}
	if err := s.store.DeleteUnbookedSlot(ctx, id); err != nil {
		if errors.Is(err, ErrSlotNotDeletable) || errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return apperr.Infra("delete ad hoc slot", err)
	}
	s.log.Info().Str("slot_id", id.String()).Msg("ad hoc slot deleted")
	return nil
}

func (s *Service) ListRules(ctx context.Context, doctorID uuid.UUID) ([]RecurringRule, error) {
	rules, err := s.store.ListRules(ctx, doctorID)
	if err != nil {
		return nil, apperr.Infra("list recurring rules", err)
	}
	return rules, nil
}

// ListSlots returns the ad hoc slots starting on any date in [from, to].
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to interval.Date) ([]AdhocSlot, error) {
	if to.Before(from) {
		return nil, apperr.Wrap(ErrInvalidRange, "to %s is before from %s", to, from)
	}
	slots, err := s.store.ListSlots(ctx, doctorID, from.Midnight(s.loc), to.AddDays(1).Midnight(s.loc))
	if err != nil {
		return nil, apperr.Infra("list ad hoc slots", err)
	}
	return slots, nil
}
