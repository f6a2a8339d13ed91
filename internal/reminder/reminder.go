// Package reminder publishes reminder and follow-up-due events on a
// schedule.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/notify"
)

// Source is the part of the appointment service the runner reads from.
type Source interface {
	DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]appointment.Appointment, error)
	FollowUpsDue(ctx context.Context, now time.Time) ([]appointment.Appointment, error)
}

// Runner remembers what it already published so overlapping reminder
// windows produce one event per appointment. Follow-ups are published once
// per appointment.
type Runner struct {
	source   Source
	notifier notify.Notifier
	lead     time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	reminded   map[uuid.UUID]time.Time // appointment id -> start time
	followedUp map[uuid.UUID]struct{}
	since      time.Time
}

// NewRunner skips follow-ups that were both completed and due before since;
// a previous process handled those.
func NewRunner(source Source, notifier notify.Notifier, lead time.Duration, since time.Time, logger zerolog.Logger) *Runner {
	return &Runner{
		source:     source,
		notifier:   notifier,
		lead:       lead,
		log:        logger.With().Str("component", "reminder").Logger(),
		reminded:   make(map[uuid.UUID]time.Time),
		followedUp: make(map[uuid.UUID]struct{}),
		since:      since,
	}
}

type Result struct {
	Reminders int
	FollowUps int
	Failed    int
}

// RunOnce publishes the events due at now. Failed publishes are retried on
// the next run.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result

	due, err := r.source.DueReminders(ctx, now, r.lead)
	if err != nil {
		return res, err
	}
	for _, a := range due {
		if _, ok := r.reminded[a.ID]; ok {
			continue
		}
		if r.publish(ctx, notify.KindReminder, a, now) {
			r.reminded[a.ID] = a.DateTime
			res.Reminders++
		} else {
			res.Failed++
		}
	}

	followUps, err := r.source.FollowUpsDue(ctx, now)
	if err != nil {
		return res, err
	}
	for _, a := range followUps {
		if _, ok := r.followedUp[a.ID]; ok || !r.newSinceStart(a) {
			continue
		}
		if r.publish(ctx, notify.KindFollowUpDue, a, now) {
			r.followedUp[a.ID] = struct{}{}
			res.FollowUps++
		} else {
			res.Failed++
		}
	}

	r.prune(now)
	return res, nil
}

// newSinceStart reports whether a's follow-up fell due, or a was completed,
// after the runner started.
func (r *Runner) newSinceStart(a appointment.Appointment) bool {
	if a.FollowUpDate == nil {
		return false
	}
	if a.FollowUpDate.After(r.since) {
		return true
	}
	return a.CompletedAt != nil && a.CompletedAt.After(r.since)
}

func (r *Runner) publish(ctx context.Context, kind notify.Kind, a appointment.Appointment, now time.Time) bool {
	err := r.notifier.Notify(ctx, notify.EventFor(kind, a, now))
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("event", string(kind)).
			Str("appointment_id", a.ID.String()).
			Msg("publish failed")
		return false
	}
	return true
}

// prune forgets appointments that have started; they cannot be listed
// again.
func (r *Runner) prune(now time.Time) {
	for id, start := range r.reminded {
		if start.Before(now) {
			delete(r.reminded, id)
		}
	}
}
