package interval

import (
	"errors"
	"time"
)

var ErrEmptyInterval = errors.New("interval end must be after start")

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds an interval and rejects empty or inverted ranges.
func New(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, ErrEmptyInterval
	}
	return Interval{Start: start, End: end}, nil
}

// OfDuration returns [start, start+d).
func OfDuration(start time.Time, d time.Duration) (Interval, error) {
	return New(start, start.Add(d))
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the intervals share at least one instant.
// Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !outer.End.Before(inner.End)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i, o)
}

func (i Interval) Contains(o Interval) bool {
	return Contains(i, o)
}

// AnyOverlap reports whether candidate overlaps any of the given intervals.
func AnyOverlap(candidate Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(candidate, o) {
			return true
		}
	}
	return false
}
