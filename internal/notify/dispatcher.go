package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/metrics"
)

// Dispatcher sends events in the background with a per event timeout.
// Failures are logged and counted.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		timeout:  timeout,
		log:      logger.With().Str("component", "notify").Logger(),
	}
}

func (d *Dispatcher) Dispatch(ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.notifier.Notify(ctx, ev)
		metrics.ObserveNotification(string(ev.Kind), err)
		if err != nil {
			d.log.Warn().
				Err(err).
				Str("event", string(ev.Kind)).
				Str("appointment_id", ev.AppointmentID.String()).
				Msg("notification failed")
		}
	}()
}

// Wait blocks until in-flight events finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
