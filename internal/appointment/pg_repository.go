package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telemedicine-booking/internal/apperr"
	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/db"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, date_time, duration_minutes, consultation_mode,
	status, consultation_fee, reason_for_visit, symptoms, notes, slot_id, emergency,
	cancelled_reason, cancelled_by, cancelled_at, completed_at, completion_notes,
	follow_up_required, follow_up_date, rating, review, payment_ref, prescription_ref,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.DateTime,
		&a.DurationMinutes,
		&a.Mode,
		&a.Status,
		&a.Fee,
		&a.Reason,
		&a.Symptoms,
		&a.Notes,
		&a.SlotID,
		&a.Emergency,
		&a.CancelledReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.CompletionNotes,
		&a.FollowUpRequired,
		&a.FollowUpDate,
		&a.Rating,
		&a.Review,
		&a.PaymentRef,
		&a.PrescriptionRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Identity

func (r *PgRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *PgRepository) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Reads

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func buildWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.From != nil {
		add("date_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("date_time < $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) (Page, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count appointments: %w", err)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + where +
		` ORDER BY date_time ` + order + `, id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total}, nil
}

func (r *PgRepository) ListFollowUpsDue(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND follow_up_required
		  AND follow_up_date IS NOT NULL
		  AND follow_up_date <= $2
		ORDER BY follow_up_date, id
	`, StatusCompleted, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ActiveIntervals(ctx context.Context, doctorID uuid.UUID, within interval.Interval) ([]interval.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_time, end_time
		FROM appointments
		WHERE doctor_id = $1
		  AND status = ANY($2)
		  AND date_time < $4
		  AND $3 < end_time
		ORDER BY date_time
	`, doctorID, statusStrings(ActiveStatuses), within.Start, within.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []interval.Interval
	for rows.Next() {
		var iv interval.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}
	return result, rows.Err()
}

// Booking

type pgBookingTx struct {
	tx pgx.Tx
}

// WithDoctorTx runs fn inside a transaction holding a transaction scoped
// advisory lock keyed on the doctor.
func (r *PgRepository) WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, doctorID.String()); err != nil {
		return fmt.Errorf("lock doctor schedule: %w", err)
	}

	if err := fn(ctx, &pgBookingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsCode(err, db.CodeExclusionViolation) {
			return apperr.Wrap(ErrConflict, "requested time overlaps an existing appointment")
		}
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

func (t *pgBookingTx) ActiveOverlapping(ctx context.Context, doctorID uuid.UUID, iv interval.Interval) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = ANY($2)
		  AND date_time < $4
		  AND $3 < end_time
		ORDER BY date_time
	`, doctorID, statusStrings(ActiveStatuses), iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgBookingTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, date_time, end_time, duration_minutes, consultation_mode,
			status, consultation_fee, reason_for_visit, symptoms, notes, slot_id, emergency,
			payment_ref, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, a.ID, a.PatientID, a.DoctorID, a.DateTime, a.EndTime(), a.DurationMinutes, a.Mode,
		a.Status, a.Fee, a.Reason, a.Symptoms, a.Notes, a.SlotID, a.Emergency,
		a.PaymentRef, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if db.IsCode(err, db.CodeExclusionViolation) {
			return apperr.Wrap(ErrConflict, "requested time overlaps an existing appointment")
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgBookingTx) ClaimSlot(ctx context.Context, slotID uuid.UUID, from availability.SlotStatus, appointmentID uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE adhoc_slots
		SET status = $2,
		    appointment_id = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $5
		  AND appointment_id IS NULL
	`, slotID, availability.SlotBooked, appointmentID, at, from)
	if err != nil {
		return fmt.Errorf("claim ad hoc slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(ErrSlotTaken, "ad hoc slot %s is no longer %s", slotID, from)
	}
	return nil
}

// Transitions

func (r *PgRepository) ApplyTransition(ctx context.Context, id uuid.UUID, from Status, ch Change) (*Appointment, error) {
	var (
		cancelReason   *string
		cancelledAt    *time.Time
		completedAt    *time.Time
		completedNotes *string
		cancelledBy    *uuid.UUID
	)
	switch ch.To {
	case StatusCancelled:
		cancelReason = &ch.CancelReason
		cancelledAt = &ch.At
		cancelledBy = ch.ActorID
	case StatusCompleted:
		completedAt = &ch.At
		completedNotes = &ch.CompletionNotes
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = $4,
		    cancelled_reason = COALESCE($5, cancelled_reason),
		    cancelled_by = COALESCE($6, cancelled_by),
		    cancelled_at = COALESCE($7, cancelled_at),
		    completed_at = COALESCE($8, completed_at),
		    completion_notes = COALESCE($9, completion_notes),
		    follow_up_required = follow_up_required OR $10,
		    follow_up_date = COALESCE($11, follow_up_date)
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, from, ch.To, ch.At, cancelReason, cancelledBy, cancelledAt, completedAt, completedNotes,
		ch.FollowUpDate != nil, ch.FollowUpDate)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, r.missingOrStale(ctx, tx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	if updated.Status == StatusCancelled && updated.SlotID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE adhoc_slots
			SET status = $3,
			    appointment_id = NULL,
			    updated_at = $4
			WHERE id = $1
			  AND appointment_id = $2
		`, *updated.SlotID, updated.ID, ReleasedSlotStatus(*updated), ch.At); err != nil {
			return nil, fmt.Errorf("release ad hoc slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) missingOrStale(ctx context.Context, tx pgx.Tx, id uuid.UUID, from Status) error {
	var current Status
	err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("load appointment status: %w", err)
	}
	return apperr.Wrap(ErrStaleStatus, "appointment %s moved from %s to %s", id, from, current)
}

func (r *PgRepository) SetRating(ctx context.Context, id uuid.UUID, rating int, review string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET rating = $2,
		    review = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $5
		RETURNING `+appointmentColumns,
		id, rating, review, at, StatusCompleted)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.Wrap(ErrInvalidStatus, "only completed appointments can be rated")
	}
	if err != nil {
		return nil, fmt.Errorf("set rating: %w", err)
	}
	return updated, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
