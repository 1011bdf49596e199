package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/citasalud/citasalud-api/internal/schedule"
)

// exclusionViolation is the Postgres error code raised by the GiST exclusion
// constraint guarding active appointment ranges.
const exclusionViolation = "23P01"

// DB is the subset of pgxpool.Pool the repository needs; it also admits
// mock pools in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database. The
// commit paths serialize per doctor with an advisory transaction lock and
// re-check conflicts inside the lock; the exclusion constraint on active
// ranges is the backstop should anything slip past.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `
	id, doctor_id, patient_id, start_at, duration_minutes, status,
	reason, symptoms, patient_notes, doctor_notes,
	diagnosis, treatment, prescription,
	cancelled_by, cancelled_role, cancellation_reason, cancelled_at,
	completed_at, created_at, updated_at
`

// Create inserts a pending appointment within one serialized transaction.
func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockDoctor(ctx, tx, a.DoctorID); err != nil {
		return err
	}
	if hit, err := conflictInTx(ctx, tx, a.DoctorID, a.Interval(), uuid.Nil); err != nil {
		return err
	} else if hit != nil {
		return RejectSlotTaken(*hit)
	}

	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, start_at, duration_minutes, status,
			reason, symptoms, patient_notes, doctor_notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		a.ID, a.DoctorID, a.PatientID, a.StartAt, a.DurationMinutes, string(a.Status),
		a.Reason, a.Symptoms, a.PatientNotes, a.DoctorNotes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if rej := slotTakenFromPgError(err, a.Interval()); rej != nil {
			return rej
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if rej := slotTakenFromPgError(err, a.Interval()); rej != nil {
			return rej
		}
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

// GetByID loads an appointment by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT` + appointmentColumns + `FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select by id: %w", err)
	}
	return a, nil
}

// Update persists a state transition guarded by the expected current status.
func (r *PostgresRepository) Update(ctx context.Context, a *Appointment, expect Status) error {
	query := `
		UPDATE appointments
		SET status = $2, doctor_notes = $3, diagnosis = $4, treatment = $5,
		    prescription = $6, cancelled_by = $7, cancelled_role = $8,
		    cancellation_reason = $9, cancelled_at = $10, completed_at = $11,
		    updated_at = $12
		WHERE id = $1 AND status = $13
	`
	tag, err := r.db.Exec(ctx, query,
		a.ID, string(a.Status), a.DoctorNotes, a.Diagnosis, a.Treatment,
		a.Prescription, toPGUUID(a.CancelledBy), string(a.CancelledRole),
		a.CancellationReason, toPGTime(a.CancelledAt), toPGTime(a.CompletedAt),
		a.UpdatedAt, string(expect),
	)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or someone else transitioned it first.
		var current string
		err := r.db.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, a.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("appointments: update recheck: %w", err)
		}
		return Reject(KindInvalidState, "appointment is %s, expected %s", current, expect)
	}
	return nil
}

// Reschedule moves an active appointment to a new start under the doctor's
// lock, keeping its identity and history.
func (r *PostgresRepository) Reschedule(ctx context.Context, a *Appointment, newStart time.Time) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockDoctor(ctx, tx, a.DoctorID); err != nil {
		return nil, err
	}
	iv := schedule.NewInterval(newStart, a.Duration())
	if hit, err := conflictInTx(ctx, tx, a.DoctorID, iv, a.ID); err != nil {
		return nil, err
	} else if hit != nil {
		return nil, RejectSlotTaken(*hit)
	}

	query := `
		UPDATE appointments
		SET start_at = $2, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING` + appointmentColumns
	updated, err := scanAppointment(tx.QueryRow(ctx, query, a.ID, newStart, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, Reject(KindInvalidState, "appointment is no longer active")
		}
		if rej := slotTakenFromPgError(err, iv); rej != nil {
			return nil, rej
		}
		return nil, fmt.Errorf("appointments: reschedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if rej := slotTakenFromPgError(err, iv); rej != nil {
			return nil, rej
		}
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return updated, nil
}

// ActiveByDoctorBetween returns active appointments intersecting [from, to).
func (r *PostgresRepository) ActiveByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND id <> $2
		  AND start_at < $4
		  AND start_at + make_interval(mins => duration_minutes) > $3
		ORDER BY start_at
	`
	rows, err := r.db.Query(ctx, query, doctorID, exclude, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: active scan: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListByDoctor returns the doctor's appointments, newest first.
func (r *PostgresRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f Filter) ([]*Appointment, error) {
	return r.listBy(ctx, "doctor_id", doctorID, f)
}

// ListByPatient returns the patient's appointments, newest first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]*Appointment, error) {
	return r.listBy(ctx, "patient_id", patientID, f)
}

func (r *PostgresRepository) listBy(ctx context.Context, column string, id uuid.UUID, f Filter) ([]*Appointment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE ` + column + ` = $1
		  AND ($2 = '' OR status = $2)
		ORDER BY start_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, id, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by %s: %w", column, err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// lockDoctor serializes commits for one doctor within the transaction. The
// lock releases automatically at commit or rollback.
func lockDoctor(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID); err != nil {
		return fmt.Errorf("appointments: doctor lock: %w", err)
	}
	return nil
}

func conflictInTx(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, iv schedule.Interval, exclude uuid.UUID) (*schedule.Interval, error) {
	query := `
		SELECT start_at, duration_minutes
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND id <> $2
		  AND start_at < $4
		  AND start_at + make_interval(mins => duration_minutes) > $3
		ORDER BY start_at
		LIMIT 1
	`
	var start time.Time
	var minutes int
	err := tx.QueryRow(ctx, query, doctorID, exclude, iv.Start, iv.End).Scan(&start, &minutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: conflict check: %w", err)
	}
	hit := schedule.NewInterval(start, time.Duration(minutes)*time.Minute)
	return &hit, nil
}

// slotTakenFromPgError translates an exclusion-constraint violation into the
// business rejection; the race was lost to a concurrent booking.
func slotTakenFromPgError(err error, iv schedule.Interval) *Rejection {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return RejectSlotTaken(iv)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelledBy pgtype.UUID
	var cancelledRole string
	var cancelledAt, completedAt pgtype.Timestamptz
	var status string
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.StartAt, &a.DurationMinutes, &status,
		&a.Reason, &a.Symptoms, &a.PatientNotes, &a.DoctorNotes,
		&a.Diagnosis, &a.Treatment, &a.Prescription,
		&cancelledBy, &cancelledRole, &a.CancellationReason, &cancelledAt,
		&completedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.CancelledRole = Role(cancelledRole)
	if cancelledBy.Valid {
		id := uuid.UUID(cancelledBy.Bytes)
		a.CancelledBy = &id
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate rows: %w", err)
	}
	return out, nil
}

func toPGUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(*id), Valid: true}
}

func toPGTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
