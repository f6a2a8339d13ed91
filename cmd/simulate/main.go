package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telemedicine-booking/internal/api"
	"github.com/hackgods/telemedicine-booking/internal/config"
	"github.com/hackgods/telemedicine-booking/internal/db"
	"github.com/hackgods/telemedicine-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	RaceWorkers  int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	DoctorLimit  int
	PatientLimit int
	PostgresDSN  string
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusBadRequest:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Cancel  OperationMetrics
	Slots   OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(logging.Config{Level: baseCfg.LogLevel, Format: "console", ServiceName: "telemed-simulate"})

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("race_workers", cfg.RaceWorkers).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Race(context.Background())
	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("overlap check")
	}
	if overlaps > 0 {
		logger.Fatal().Int("pairs", overlaps).Msg("double booking detected")
	}
	logger.Info().Msg("no overlapping active appointments")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		RaceWorkers:  getInt("SIM_RACE_WORKERS", 50),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	doctors, err := queryIDs(ctx, pool, `
		SELECT DISTINCT doctor_id FROM recurring_rules
		WHERE deleted_at IS NULL AND status = 'AVAILABLE'
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	patients, err := queryIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability loaded, run cmd/seed first")
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	dataPool.Doctors = doctors
	dataPool.Patients = patients
	return dataPool, nil
}

func queryIDs(ctx context.Context, pool *pgxpool.Pool, sql string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// countOverlaps returns the number of overlapping pairs of active
// appointments for the same doctor.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.id < b.id
		 AND a.date_time < b.end_time
		 AND b.date_time < a.end_time
		WHERE a.status IN ('SCHEDULED', 'CONFIRMED', 'IN_PROGRESS')
		  AND b.status IN ('SCHEDULED', 'CONFIRMED', 'IN_PROGRESS')
	`).Scan(&n)
	return n, err
}

// Race sends RaceWorkers identical booking requests at once. Exactly one
// must succeed.
func (s *Simulator) Race(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start, ok := s.findFreeSlot(ctx, rng, doctor)
	if !ok {
		s.log.Warn().Str("doctor_id", doctor.String()).Msg("no free slot for race phase, skipping")
		return
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.RaceWorkers; i++ {
		patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		g.Go(func() error {
			status, id := s.book(gctx, doctor, patient, start)
			if status == http.StatusCreated {
				created.Add(1)
				s.pool.AddAppointment(id)
			}
			return nil
		})
	}
	_ = g.Wait()

	ev := s.log.Info()
	if created.Load() != 1 {
		ev = s.log.Error()
	}
	ev.Int64("created", created.Load()).
		Int("attempts", s.config.RaceWorkers).
		Time("start", start).
		Msg("race phase complete")
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting load phase")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info().Msg("load phase complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doTransition(ctx, rng, "confirm", &s.metrics.Confirm)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doTransition(ctx, rng, "cancel?reason=simulated", &s.metrics.Cancel)
		default:
			s.doList(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start, ok := s.findFreeSlot(ctx, rng, doctor)
	if !ok {
		return
	}

	began := time.Now()
	status, id := s.book(ctx, doctor, patient, start)
	s.metrics.Booking.Record(time.Since(began), status)
	if status == http.StatusCreated {
		s.pool.AddAppointment(id)
	}
}

// findFreeSlot looks up to two weeks ahead for a slot the API reports as
// available. It picks randomly so concurrent workers collide often.
func (s *Simulator) findFreeSlot(ctx context.Context, rng *rand.Rand, doctor uuid.UUID) (time.Time, bool) {
	day := time.Now().AddDate(0, 0, 1+rng.Intn(14)).Format("2006-01-02")
	url := fmt.Sprintf("%s/availability/slots/%s?date=%s", s.config.APIBaseURL, doctor, day)

	var slots []api.SlotAvailabilityResponse
	began := time.Now()
	status, err := s.do(ctx, http.MethodGet, url, nil, &slots)
	s.metrics.Slots.Record(time.Since(began), status)
	if err != nil || status != http.StatusOK {
		return time.Time{}, false
	}

	var free []time.Time
	for _, sl := range slots {
		if sl.Available {
			free = append(free, sl.Start)
		}
	}
	if len(free) == 0 {
		return time.Time{}, false
	}
	return free[rng.Intn(len(free))], true
}

func (s *Simulator) book(ctx context.Context, doctor, patient uuid.UUID, start time.Time) (int, uuid.UUID) {
	req := api.BookAppointmentRequest{
		DoctorID:  doctor.String(),
		PatientID: patient.String(),
		DateTime:  start,
		Reason:    "simulated consultation",
	}
	var resp api.AppointmentResponse
	status, err := s.do(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", req, &resp)
	if err != nil {
		return 0, uuid.Nil
	}
	return status, resp.ID
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	began := time.Now()
	status, _ := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/appointments/%s/%s", s.config.APIBaseURL, id, action), nil, nil)
	om.Record(time.Since(began), status)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	began := time.Now()
	status, _ := s.do(ctx, http.MethodGet, fmt.Sprintf("%s/appointments?patient=%s&size=20", s.config.APIBaseURL, patient), nil, nil)
	s.metrics.List.Record(time.Since(began), status)
}

// do sends a JSON request and decodes a 2xx body into out when set.
func (s *Simulator) do(ctx context.Context, method, url string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Slot lookup", &s.metrics.Slots)
	printOperationReport("List by patient", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
