package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/config"
	"github.com/hackgods/telemedicine-booking/internal/db"
	"github.com/hackgods/telemedicine-booking/internal/logging"
	"github.com/hackgods/telemedicine-booking/internal/notify"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
	"github.com/hackgods/telemedicine-booking/internal/reminder"
)

const serviceName = "telemed-reminder-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		File:        cfg.LogFile,
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	logger.Info().
		Str("schedule", cfg.ReminderSchedule).
		Dur("lead", cfg.ReminderLead).
		Msg("reminder-worker starting up")

	if cfg.StoreBackend != config.BackendPostgres {
		logger.Fatal().Msg("reminder-worker requires STORE_BACKEND=postgres")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NatsURL != "" {
		nc, err := notify.Connect(cfg.NatsURL, serviceName)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connection error")
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn().Err(err).Msg("error draining nats")
			}
		}()
		notifier = notify.NewNatsNotifier(nc, "")
		logger.Info().Str("url", cfg.NatsURL).Msg("connected to NATS")
	} else {
		logger.Warn().Msg("NATS_URL not set, reminders are computed but not published")
	}

	// Only the read paths of the service are used here, so bookings never
	// contend for the local locker.
	repo := appointment.NewPgRepository(pgPool)
	resolver := availability.NewResolver(availability.NewPgStore(pgPool), repo, cfg.Timezone)
	svc := appointment.NewService(repo, repo, resolver, redisclient.NewLocalLocker(redisclient.LockOptions{}), logger)

	runner := reminder.NewRunner(svc, notifier, cfg.ReminderLead, time.Now(), logger)

	c := cron.New(cron.WithLocation(cfg.Timezone))
	if _, err := c.AddFunc(cfg.ReminderSchedule, func() { runOnce(rootCtx, runner, logger) }); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReminderSchedule).Msg("invalid REMINDER_SCHEDULE")
	}

	// Run once at startup
	runOnce(rootCtx, runner, logger)
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping reminder worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Msg("reminder run still in flight at shutdown")
	}
}

func runOnce(ctx context.Context, runner *reminder.Runner, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	res, err := runner.RunOnce(runCtx, start)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run error")
		return
	}
	logger.Info().
		Int("reminders", res.Reminders).
		Int("follow_ups", res.FollowUps).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("reminder run complete")
}
