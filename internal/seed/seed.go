// Package seed generates demo doctors, patients and weekly schedules.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
	"github.com/hackgods/telemedicine-booking/internal/store/memstore"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty string
}

type Patient struct {
	ID    uuid.UUID
	Name  string
	Email string
}

type Dataset struct {
	Doctors  []Doctor
	Patients []Patient
	Rules    []availability.CreateRuleRequest
}

// Generate builds a dataset where every doctor works Monday to Friday
// with one window per day starting between 08:00 and 10:00.
func Generate(f *gofakeit.Faker, doctors, patients int) Dataset {
	ds := Dataset{
		Doctors:  make([]Doctor, 0, doctors),
		Patients: make([]Patient, 0, patients),
	}

	for i := 0; i < doctors; i++ {
		d := Doctor{
			ID:        uuid.New(),
			Name:      "Dr. " + f.Name(),
			Specialty: specialties[f.Number(0, len(specialties)-1)],
		}
		ds.Doctors = append(ds.Doctors, d)

		start := interval.Clock(f.Number(16, 20) * 30)
		end := start + interval.Clock(f.Number(3, 8)*60)
		slot := []int{15, 20, 30}[f.Number(0, 2)]
		for day := time.Monday; day <= time.Friday; day++ {
			ds.Rules = append(ds.Rules, availability.CreateRuleRequest{
				DoctorID:    d.ID,
				DayOfWeek:   day,
				Start:       start,
				End:         end,
				Capacity:    1,
				SlotMinutes: slot,
				Note:        d.Specialty + " consultations",
			})
		}
	}

	for i := 0; i < patients; i++ {
		ds.Patients = append(ds.Patients, Patient{
			ID:    uuid.New(),
			Name:  f.Name(),
			Email: f.Email(),
		})
	}
	return ds
}

// Directory receives the identity records of a dataset.
type Directory interface {
	AddDoctors(ctx context.Context, doctors []Doctor) error
	AddPatients(ctx context.Context, patients []Patient) error
}

// Load writes the identities to dir and declares the rules through rules,
// so seeded schedules pass the same validation as doctor input.
func Load(ctx context.Context, ds Dataset, dir Directory, rules *availability.Service, logger zerolog.Logger) error {
	if err := dir.AddDoctors(ctx, ds.Doctors); err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	logger.Info().Int("count", len(ds.Doctors)).Msg("doctors seeded")

	if err := dir.AddPatients(ctx, ds.Patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	logger.Info().Int("count", len(ds.Patients)).Msg("patients seeded")

	for _, req := range ds.Rules {
		if _, err := rules.CreateRule(ctx, req); err != nil {
			return fmt.Errorf("seed rule for doctor %s: %w", req.DoctorID, err)
		}
	}
	logger.Info().Int("count", len(ds.Rules)).Msg("recurring rules seeded")
	return nil
}

// MemDirectory registers identities in an in-process store.
type MemDirectory struct {
	Store *memstore.Store
}

func (m MemDirectory) AddDoctors(_ context.Context, doctors []Doctor) error {
	for _, d := range doctors {
		m.Store.RegisterDoctor(d.ID)
	}
	return nil
}

func (m MemDirectory) AddPatients(_ context.Context, patients []Patient) error {
	for _, p := range patients {
		m.Store.RegisterPatient(p.ID)
	}
	return nil
}

// PgDirectory inserts identities into the doctors and patients tables in
// batches.
type PgDirectory struct {
	Pool      *pgxpool.Pool
	BatchSize int
}

func (p PgDirectory) batchSize() int {
	if p.BatchSize <= 0 {
		return 500
	}
	return p.BatchSize
}

func (p PgDirectory) AddDoctors(ctx context.Context, doctors []Doctor) error {
	return inBatches(ctx, p.Pool, len(doctors), p.batchSize(), func(ctx context.Context, exec execer, i int) error {
		d := doctors[i]
		_, err := exec.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, d.ID, d.Name, d.Specialty)
		return err
	})
}

func (p PgDirectory) AddPatients(ctx context.Context, patients []Patient) error {
	return inBatches(ctx, p.Pool, len(patients), p.batchSize(), func(ctx context.Context, exec execer, i int) error {
		pt := patients[i]
		_, err := exec.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, pt.ID, pt.Name, pt.Email)
		return err
	})
}
