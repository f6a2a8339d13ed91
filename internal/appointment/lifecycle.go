package appointment

import "github.com/hackgods/telemedicine-booking/internal/apperr"

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionConfirm  Transition = "confirm"
	TransitionStart    Transition = "start"
	TransitionCancel   Transition = "cancel"
	TransitionComplete Transition = "complete"
	TransitionNoShow   Transition = "no_show"
)

var transitions = map[Transition]struct {
	from []Status
	to   Status
}{
	TransitionConfirm:  {from: []Status{StatusScheduled}, to: StatusConfirmed},
	TransitionStart:    {from: []Status{StatusConfirmed}, to: StatusInProgress},
	TransitionCancel:   {from: []Status{StatusScheduled, StatusConfirmed, StatusInProgress}, to: StatusCancelled},
	TransitionComplete: {from: []Status{StatusConfirmed, StatusInProgress}, to: StatusCompleted},
	TransitionNoShow:   {from: []Status{StatusConfirmed, StatusInProgress}, to: StatusNoShow},
}

// Next returns the status reached by applying t to an appointment in from.
func Next(from Status, t Transition) (Status, error) {
	rule, ok := transitions[t]
	if !ok {
		return "", apperr.Wrap(ErrInvalidRequest, "unknown transition %q", t)
	}
	for _, s := range rule.from {
		if s == from {
			return rule.to, nil
		}
	}
	return "", apperr.Wrap(ErrInvalidStatus, "cannot %s an appointment in status %s", t, from)
}

// Allowed reports the transitions legal from s.
func Allowed(s Status) []Transition {
	var out []Transition
	for _, t := range []Transition{TransitionConfirm, TransitionStart, TransitionCancel, TransitionComplete, TransitionNoShow} {
		if _, err := Next(s, t); err == nil {
			out = append(out, t)
		}
	}
	return out
}
