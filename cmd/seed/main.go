package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/appointment"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/config"
	"github.com/hackgods/telemedicine-booking/internal/db"
	"github.com/hackgods/telemedicine-booking/internal/logging"
	"github.com/hackgods/telemedicine-booking/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, ServiceName: "telemed-seed"})
	logger.Info().Int("doctors", cfg.SeedDoctors).Int("patients", cfg.SeedPatients).Msg("seed starting")

	if cfg.StoreBackend != config.BackendPostgres {
		logger.Fatal().Msg("seed requires STORE_BACKEND=postgres; the memory backend seeds itself")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	ds := seed.Generate(gofakeit.New(0), cfg.SeedDoctors, cfg.SeedPatients)
	rules := availability.NewService(availability.NewPgStore(pool), appointment.NewPgRepository(pool), cfg.Timezone, logger)

	if err := seed.Load(ctx, ds, seed.PgDirectory{Pool: pool}, rules, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	logger.Info().Msg("seed complete")
}
