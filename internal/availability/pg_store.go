package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telemedicine-booking/internal/interval"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const ruleColumns = `id, doctor_id, day_of_week, start_minute, end_minute, capacity, slot_minutes,
	status, effective_from, effective_until, note, created_at, updated_at`

const slotColumns = `id, doctor_id, start_time, end_time, status, appointment_id, block_reason,
	created_at, updated_at`

func scanRule(row pgx.Row) (*RecurringRule, error) {
	var (
		r          RecurringRule
		day        int
		start, end int
		from, till *time.Time
	)

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&day,
		&start,
		&end,
		&r.Capacity,
		&r.SlotMinutes,
		&r.Status,
		&from,
		&till,
		&r.Note,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	r.DayOfWeek = time.Weekday(day)
	r.Start = interval.Clock(start)
	r.End = interval.Clock(end)
	r.EffectiveFrom = toDate(from)
	r.EffectiveUntil = toDate(till)
	return &r, nil
}

func scanSlot(row pgx.Row) (*AdhocSlot, error) {
	var s AdhocSlot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Start,
		&s.End,
		&s.Status,
		&s.AppointmentID,
		&s.BlockReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func toDate(t *time.Time) *interval.Date {
	if t == nil {
		return nil
	}
	d := interval.DateOf(*t, time.UTC)
	return &d
}

func fromDate(d *interval.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Midnight(time.UTC)
	return &t
}

func (s *PgStore) CreateRule(ctx context.Context, r *RecurringRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recurring_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, r.DoctorID, int(r.DayOfWeek), int(r.Start), int(r.End), r.Capacity, r.SlotMinutes,
		r.Status, fromDate(r.EffectiveFrom), fromDate(r.EffectiveUntil), r.Note, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert recurring rule: %w", err)
	}
	return nil
}

func (s *PgStore) GetRule(ctx context.Context, id uuid.UUID) (*RecurringRule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_rules
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanRule(row)
}

func (s *PgStore) ListRules(ctx context.Context, doctorID uuid.UUID) ([]RecurringRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM recurring_rules
		WHERE doctor_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RecurringRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *PgStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recurring_rules
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *PgStore) CreateSlot(ctx context.Context, sl *AdhocSlot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO adhoc_slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sl.ID, sl.DoctorID, sl.Start, sl.End, sl.Status, sl.AppointmentID, sl.BlockReason,
		sl.CreatedAt, sl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ad hoc slot: %w", err)
	}
	return nil
}

func (s *PgStore) GetSlot(ctx context.Context, id uuid.UUID) (*AdhocSlot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM adhoc_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (s *PgStore) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AdhocSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM adhoc_slots
		WHERE doctor_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time, created_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AdhocSlot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sl)
	}
	return result, rows.Err()
}

func (s *PgStore) DeleteUnbookedSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM adhoc_slots
		WHERE id = $1 AND status <> $2 AND appointment_id IS NULL
	`, id, SlotBooked)
	if err != nil {
		return fmt.Errorf("delete ad hoc slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetSlot(ctx, id); err != nil {
		return err
	}
	return ErrSlotNotDeletable
}
