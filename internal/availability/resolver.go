package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

// MaxRangeDays bounds ResolveRange.
const MaxRangeDays = 31

// Resolver projects rules and ad hoc slots onto concrete dates. It reads
// without locking; the booking path re-validates under its own lock.
type Resolver struct {
	store     Store
	occupancy Occupancy
	loc       *time.Location
}

// NewResolver builds a resolver. occupancy may be nil, in which case
// remaining capacity equals declared capacity.
func NewResolver(store Store, occupancy Occupancy, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{store: store, occupancy: occupancy, loc: loc}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve returns the bookable windows of a doctor on date, ascending by
// start. Rule windows precede slot windows on equal starts.
func (r *Resolver) Resolve(ctx context.Context, doctorID uuid.UUID, date interval.Date) ([]Window, error) {
	return r.resolve(ctx, doctorID, date, false)
}

// ResolveEmergency returns only the emergency reserved slots of date.
func (r *Resolver) ResolveEmergency(ctx context.Context, doctorID uuid.UUID, date interval.Date) ([]Window, error) {
	return r.resolve(ctx, doctorID, date, true)
}

func (r *Resolver) resolve(ctx context.Context, doctorID uuid.UUID, date interval.Date, emergency bool) ([]Window, error) {
	day := date.Span(r.loc)

	var windows []Window

	if !emergency {
		rules, err := r.store.ListRules(ctx, doctorID)
		if err != nil {
			return nil, apperr.Infra("list recurring rules", err)
		}
		for _, rule := range rules {
			if !rule.Status.Bookable() || !rule.ActiveOn(date) {
				continue
			}
			windows = append(windows, Window{
				Source:      SourceRule,
				SourceID:    rule.ID,
				DoctorID:    doctorID,
				Date:        date,
				Start:       rule.Start,
				End:         rule.End,
				Interval:    interval.Interval{Start: date.At(rule.Start, r.loc), End: date.At(rule.End, r.loc)},
				Capacity:    rule.Capacity,
				SlotMinutes: rule.SlotMinutes,
			})
		}
	}

	slots, err := r.store.ListSlots(ctx, doctorID, day.Start, day.End)
	if err != nil {
		return nil, apperr.Infra("list ad hoc slots", err)
	}
	for _, s := range slots {
		want := SlotAvailable
		if emergency {
			want = SlotEmergency
		}
		if s.Status != want {
			continue
		}
		windows = append(windows, Window{
			Source:      SourceSlot,
			SourceID:    s.ID,
			DoctorID:    doctorID,
			Date:        date,
			Start:       interval.ClockOf(s.Start, r.loc),
			End:         slotEndClock(s, date, r.loc),
			Interval:    s.Interval(),
			Capacity:    1,
			SlotMinutes: int(s.End.Sub(s.Start) / time.Minute),
			Emergency:   emergency,
		})
	}

	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Interval.Start.Before(windows[j].Interval.Start)
	})

	if err := r.fillRemaining(ctx, doctorID, day, windows); err != nil {
		return nil, err
	}
	return windows, nil
}

func slotEndClock(s AdhocSlot, date interval.Date, loc *time.Location) interval.Clock {
	if interval.DateOf(s.End, loc) != date {
		return interval.Clock(24 * 60)
	}
	return interval.ClockOf(s.End, loc)
}

func (r *Resolver) fillRemaining(ctx context.Context, doctorID uuid.UUID, day interval.Interval, windows []Window) error {
	var busy []interval.Interval
	if r.occupancy != nil && len(windows) > 0 {
		var err error
		busy, err = r.occupancy.ActiveIntervals(ctx, doctorID, day)
		if err != nil {
			return apperr.Infra("load occupied intervals", err)
		}
	}
	for i := range windows {
		used := 0
		for _, b := range busy {
			if interval.Overlaps(windows[i].Interval, b) {
				used++
			}
		}
		windows[i].Remaining = max(windows[i].Capacity-used, 0)
	}
	return nil
}

// ResolveRange resolves every date in [from, to].
func (r *Resolver) ResolveRange(ctx context.Context, doctorID uuid.UUID, from, to interval.Date) ([]DayWindows, error) {
	if to.Before(from) {
		return nil, apperr.Wrap(ErrInvalidRange, "to %s is before from %s", to, from)
	}
	if n := from.DaysUntil(to) + 1; n > MaxRangeDays {
		return nil, apperr.Wrap(ErrInvalidRange, "range of %d days exceeds %d", n, MaxRangeDays)
	}

	var out []DayWindows
	for d := from; !d.After(to); d = d.AddDays(1) {
		ws, err := r.Resolve(ctx, doctorID, d)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", d, err)
		}
		out = append(out, DayWindows{Date: d, Windows: ws})
	}
	return out, nil
}

// Slots splits the windows of date into granularity sized pieces. A piece
// is available when it starts at or after now and overlaps no active
// appointment.
func (r *Resolver) Slots(ctx context.Context, doctorID uuid.UUID, date interval.Date, now time.Time) ([]Slot, error) {
	windows, err := r.Resolve(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	var busy []interval.Interval
	if r.occupancy != nil {
		busy, err = r.occupancy.ActiveIntervals(ctx, doctorID, date.Span(r.loc))
		if err != nil {
			return nil, apperr.Infra("load occupied intervals", err)
		}
	}

	var out []Slot
	for _, w := range windows {
		step := time.Duration(w.SlotMinutes) * time.Minute
		if step <= 0 {
			step = DefaultSlotMinutes * time.Minute
		}
		for start := w.Interval.Start; !start.Add(step).After(w.Interval.End); start = start.Add(step) {
			piece := interval.Interval{Start: start, End: start.Add(step)}
			out = append(out, Slot{
				Source:    w.Source,
				SourceID:  w.SourceID,
				Interval:  piece,
				Available: !piece.Start.Before(now) && !interval.AnyOverlap(piece, busy),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out, nil
}
