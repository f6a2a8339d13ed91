package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telemedicine-booking/internal/metrics"
)

var (
	ErrLockNotAcquired = errors.New("doctor lock not acquired")
)

// Locker guards the booking critical section of one doctor.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// LockOptions bound how long a lock lives and how hard callers try to get it.
type LockOptions struct {
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

func (o LockOptions) withDefaults() LockOptions {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
	return o
}

type redisDoctorLocker struct {
	client *redis.Client
	opts   LockOptions
}

// NewRedisDoctorLocker creates a locker that uses a per doctor Redis key.
func NewRedisDoctorLocker(client *redis.Client, opts LockOptions) Locker {
	return &redisDoctorLocker{
		client: client,
		opts:   opts.withDefaults(),
	}
}

func lockKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor:%s", doctorID.String())
}

func (l *redisDoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(doctorID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDoctorLocker) acquire(ctx context.Context, key, token string) error {
	start := time.Now()
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			metrics.ObserveLockWait(false, time.Since(start))
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			metrics.ObserveLockWait(true, time.Since(start))
			return nil
		}
		if attempt >= l.opts.Retries {
			metrics.ObserveLockWait(false, time.Since(start))
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(l.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.ObserveLockWait(false, time.Since(start))
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDoctorLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor lock: %w", err)
	}
	return nil
}

type localDoctorLocker struct {
	opts  LockOptions
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

// NewLocalLocker creates an in-process locker for single node deployments.
// A caller waits at most Retries*RetryDelay before ErrLockNotAcquired.
func NewLocalLocker(opts LockOptions) Locker {
	return &localDoctorLocker{
		opts:  opts.withDefaults(),
		slots: make(map[uuid.UUID]chan struct{}),
	}
}

func (l *localDoctorLocker) slot(doctorID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[doctorID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[doctorID] = ch
	}
	return ch
}

func (l *localDoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.slot(doctorID)
	start := time.Now()

	select {
	case ch <- struct{}{}:
	default:
		wait := time.NewTimer(time.Duration(l.opts.Retries) * l.opts.RetryDelay)
		select {
		case ch <- struct{}{}:
			wait.Stop()
		case <-wait.C:
			metrics.ObserveLockWait(false, time.Since(start))
			return ErrLockNotAcquired
		case <-ctx.Done():
			wait.Stop()
			metrics.ObserveLockWait(false, time.Since(start))
			return ctx.Err()
		}
	}
	metrics.ObserveLockWait(true, time.Since(start))
	defer func() { <-ch }()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}
