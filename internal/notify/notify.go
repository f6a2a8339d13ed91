// Package notify publishes appointment events for the delivery services.
// Publishing is best effort and never affects the outcome of a booking or
// transition.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
)

type Kind string

const (
	KindBooked      Kind = "booked"
	KindConfirmed   Kind = "confirmed"
	KindStarted     Kind = "started"
	KindCancelled   Kind = "cancelled"
	KindCompleted   Kind = "completed"
	KindNoShow      Kind = "no_show"
	KindReminder    Kind = "reminder"
	KindFollowUpDue Kind = "follow_up_due"
)

// KindFor maps a lifecycle transition to its event kind.
func KindFor(t appointment.Transition) Kind {
	switch t {
	case appointment.TransitionConfirm:
		return KindConfirmed
	case appointment.TransitionStart:
		return KindStarted
	case appointment.TransitionCancel:
		return KindCancelled
	case appointment.TransitionComplete:
		return KindCompleted
	case appointment.TransitionNoShow:
		return KindNoShow
	}
	return Kind(t)
}

type Event struct {
	Kind          Kind        `json:"kind"`
	AppointmentID uuid.UUID   `json:"appointment_id"`
	Participants  []uuid.UUID `json:"participants"`
	Status        string      `json:"status"`
	StartsAt      time.Time   `json:"starts_at"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// EventFor builds the event describing a.
func EventFor(kind Kind, a appointment.Appointment, at time.Time) Event {
	return Event{
		Kind:          kind,
		AppointmentID: a.ID,
		Participants:  a.Participants(),
		Status:        string(a.Status),
		StartsAt:      a.DateTime,
		OccurredAt:    at,
	}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

const DefaultSubjectPrefix = "telemed.appointment"

// NatsNotifier publishes each event as JSON on <prefix>.<kind>.
type NatsNotifier struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

func NewNatsNotifier(nc *nats.Conn, prefix string) *NatsNotifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NatsNotifier{nc: nc, prefix: prefix}
}

func (n *NatsNotifier) Subject(k Kind) string {
	return n.prefix + "." + string(k)
}

func (n *NatsNotifier) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if err := n.nc.Publish(n.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}
