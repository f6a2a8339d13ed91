package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telemedicine-booking/internal/api"
	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/config"
	"github.com/hackgods/telemedicine-booking/internal/db"
	"github.com/hackgods/telemedicine-booking/internal/logging"
	"github.com/hackgods/telemedicine-booking/internal/notify"
	redisclient "github.com/hackgods/telemedicine-booking/internal/redis"
	"github.com/hackgods/telemedicine-booking/internal/seed"
	"github.com/hackgods/telemedicine-booking/internal/store/memstore"
	"github.com/hackgods/telemedicine-booking/internal/telemetry"
)

const (
	serviceName = "telemed-api"
	version     = "0.1.0"
)

// stores groups the backend specific implementations the services need.
type stores struct {
	availability availability.Store
	occupancy    availability.Occupancy
	repo         appointment.Repository
	identity     appointment.Identity
	checks       []api.Check
	seedDir      seed.Directory
	close        func()
}

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
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("timezone", cfg.Timezone.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api-server stopped")
	}
	logger.Info().Msg("api-server shut down")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	locker, checks, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()
	checks = append(st.checks, checks...)

	notifier, natsCheck, closeNotifier, err := openNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()
	if natsCheck != nil {
		checks = append(checks, *natsCheck)
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyTimeout, logger)

	resolver := availability.NewResolver(st.availability, st.occupancy, cfg.Timezone)
	availSvc := availability.NewService(st.availability, st.identity, cfg.Timezone, logger).WithLocker(locker)
	apptSvc := appointment.NewService(st.repo, st.identity, resolver, locker, logger)

	if st.seedDir != nil {
		ds := seed.Generate(gofakeit.New(0), cfg.SeedDoctors, cfg.SeedPatients)
		if err := seed.Load(ctx, ds, st.seedDir, availSvc, logger); err != nil {
			return err
		}
		for _, d := range ds.Doctors {
			logger.Info().Str("doctor_id", d.ID.String()).Str("name", d.Name).Msg("demo doctor")
		}
		for _, p := range ds.Patients[:min(5, len(ds.Patients))] {
			logger.Info().Str("patient_id", p.ID.String()).Str("name", p.Name).Msg("demo patient")
		}
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Appointments: apptSvc,
			Availability: availSvc,
			Resolver:     resolver,
			Events:       dispatcher,
			Checks:       checks,
			Logger:       logger,
			Location:     cfg.Timezone,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return dispatcher.Wait(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreBackend == config.BackendMemory {
		mem := memstore.New()
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return &stores{
			availability: mem,
			occupancy:    mem,
			repo:         mem,
			identity:     mem,
			seedDir:      seed.MemDirectory{Store: mem},
			close:        func() {},
		}, nil
	}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	defer cancelPg()
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(pgCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().Msg("connected to Postgres")

	availStore := availability.NewPgStore(pool)
	repo := appointment.NewPgRepository(pool)
	return &stores{
		availability: availStore,
		occupancy:    repo,
		repo:         repo,
		identity:     repo,
		checks:       []api.Check{{Name: "postgres", Critical: true, Ping: pool.Ping}},
		close:        pool.Close,
	}, nil
}

// openLocker returns the Redis locker when an address is configured and
// the in-process locker otherwise.
func openLocker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (redisclient.Locker, []api.Check, func(), error) {
	opts := redisclient.LockOptions{
		TTL:        cfg.LockTTL,
		Retries:    cfg.LockRetries,
		RetryDelay: cfg.LockRetryDelay,
	}
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, doctor locks are local to this process")
		return redisclient.NewLocalLocker(opts), nil, func() {}, nil
	}

	rdb, err := redisclient.Connect(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}
	check := api.Check{Name: "redis", Ping: pingRedis(rdb)}
	return redisclient.NewRedisDoctorLocker(rdb, opts), []api.Check{check}, closeFn, nil
}

func pingRedis(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

func openNotifier(cfg config.Config, logger zerolog.Logger) (notify.Notifier, *api.Check, func(), error) {
	if cfg.NatsURL == "" {
		logger.Info().Msg("NATS_URL not set, appointment events are not published")
		return notify.Noop{}, nil, func() {}, nil
	}

	nc, err := notify.Connect(cfg.NatsURL, serviceName)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Str("url", cfg.NatsURL).Msg("connected to NATS")

	check := &api.Check{Name: "nats", Ping: func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}}
	closeFn := func() {
		if err := nc.Drain(); err != nil {
			logger.Warn().Err(err).Msg("error draining nats")
		}
	}
	return notify.NewNatsNotifier(nc, ""), check, closeFn, nil
}
