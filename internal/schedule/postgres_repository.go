package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

// DB is the subset of pgxpool.Pool the repository needs; it also admits
// mock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores availability rules and exceptions in the
// relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("schedule: db required")
	}
	return &PostgresRepository{db: db}
}

// isOverlapViolation recognizes the constraint errors raised when a rule
// write loses a race: the exclusion constraint on active windows (23P01) or
// a duplicate key (23505).
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == exclusionViolation || pgErr.Code == uniqueViolation)
}

// CreateRule validates and inserts a rule, rejecting collisions with
// existing active rules on the same weekday.
func (r *PostgresRepository) CreateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	overlap, err := r.hasOverlap(ctx, rule, uuid.Nil)
	if err != nil {
		return err
	}
	if overlap {
		return ErrRuleOverlap
	}

	query := `
		INSERT INTO availability_rules (id, doctor_id, weekday, start_minutes, end_minutes, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		rule.ID, rule.DoctorID, int(rule.Weekday), rule.StartMinutes, rule.EndMinutes, rule.Active, rule.CreatedAt,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrRuleOverlap
		}
		return fmt.Errorf("schedule: insert rule: %w", err)
	}
	return nil
}

// GetRule loads one rule by id.
func (r *PostgresRepository) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	query := `
		SELECT id, doctor_id, weekday, start_minutes, end_minutes, active, created_at
		FROM availability_rules
		WHERE id = $1
	`
	var rule Rule
	var weekday int
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rule.ID, &rule.DoctorID, &weekday, &rule.StartMinutes, &rule.EndMinutes, &rule.Active, &rule.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select rule: %w", err)
	}
	rule.Weekday = time.Weekday(weekday)
	return &rule, nil
}

// ListRules returns a doctor's rules ordered by weekday then start.
func (r *PostgresRepository) ListRules(ctx context.Context, doctorID uuid.UUID) ([]Rule, error) {
	query := `
		SELECT id, doctor_id, weekday, start_minutes, end_minutes, active, created_at
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY weekday, start_minutes
	`
	rows, err := r.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// UpdateRule replaces a rule's window and active flag.
func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	overlap, err := r.hasOverlap(ctx, rule, rule.ID)
	if err != nil {
		return err
	}
	if overlap {
		return ErrRuleOverlap
	}

	query := `
		UPDATE availability_rules
		SET weekday = $2, start_minutes = $3, end_minutes = $4, active = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, rule.ID, int(rule.Weekday), rule.StartMinutes, rule.EndMinutes, rule.Active)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrRuleOverlap
		}
		return fmt.Errorf("schedule: update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (r *PostgresRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("schedule: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// CreateException blocks a day; the unique index enforces one per day.
func (r *PostgresRepository) CreateException(ctx context.Context, e *Exception) error {
	if e.DoctorID == uuid.Nil {
		return ErrMissingDoctor
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO schedule_exceptions (id, doctor_id, day, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.DoctorID, e.Day, e.Reason, e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateException
		}
		return fmt.Errorf("schedule: insert exception: %w", err)
	}
	return nil
}

// GetException loads one exception by id.
func (r *PostgresRepository) GetException(ctx context.Context, id uuid.UUID) (*Exception, error) {
	query := `
		SELECT id, doctor_id, day, reason, created_at
		FROM schedule_exceptions
		WHERE id = $1
	`
	var e Exception
	err := r.db.QueryRow(ctx, query, id).Scan(&e.ID, &e.DoctorID, &e.Day, &e.Reason, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select exception: %w", err)
	}
	return &e, nil
}

// ListExceptions returns a doctor's blocked days ordered by date.
func (r *PostgresRepository) ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]Exception, error) {
	query := `
		SELECT id, doctor_id, day, reason, created_at
		FROM schedule_exceptions
		WHERE doctor_id = $1
		ORDER BY day
	`
	rows, err := r.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list exceptions: %w", err)
	}
	defer rows.Close()
	return collectExceptions(rows)
}

// DeleteException unblocks a day.
func (r *PostgresRepository) DeleteException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM schedule_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("schedule: delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

// CalendarFor assembles the calendar from active rules and exceptions.
func (r *PostgresRepository) CalendarFor(ctx context.Context, doctorID uuid.UUID) (Calendar, error) {
	cal := Calendar{}

	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, weekday, start_minutes, end_minutes, active, created_at
		FROM availability_rules
		WHERE doctor_id = $1 AND active
		ORDER BY weekday, start_minutes
	`, doctorID)
	if err != nil {
		return cal, fmt.Errorf("schedule: load rules: %w", err)
	}
	cal.Rules, err = collectRules(rows)
	rows.Close()
	if err != nil {
		return cal, err
	}

	rows, err = r.db.Query(ctx, `
		SELECT id, doctor_id, day, reason, created_at
		FROM schedule_exceptions
		WHERE doctor_id = $1
		ORDER BY day
	`, doctorID)
	if err != nil {
		return cal, fmt.Errorf("schedule: load exceptions: %w", err)
	}
	cal.Exceptions, err = collectExceptions(rows)
	rows.Close()
	if err != nil {
		return cal, err
	}

	return cal, nil
}

func (r *PostgresRepository) hasOverlap(ctx context.Context, rule *Rule, exclude uuid.UUID) (bool, error) {
	if !rule.Active {
		return false, nil
	}
	query := `
		SELECT EXISTS (
			SELECT 1 FROM availability_rules
			WHERE doctor_id = $1 AND weekday = $2 AND active AND id <> $3
			  AND start_minutes < $5 AND $4 < end_minutes
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, rule.DoctorID, int(rule.Weekday), exclude, rule.StartMinutes, rule.EndMinutes).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("schedule: rule overlap check: %w", err)
	}
	return exists, nil
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		var rule Rule
		var weekday int
		if err := rows.Scan(&rule.ID, &rule.DoctorID, &weekday, &rule.StartMinutes, &rule.EndMinutes, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan rule: %w", err)
		}
		rule.Weekday = time.Weekday(weekday)
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate rules: %w", err)
	}
	return out, nil
}

func collectExceptions(rows pgx.Rows) ([]Exception, error) {
	var out []Exception
	for rows.Next() {
		var e Exception
		if err := rows.Scan(&e.ID, &e.DoctorID, &e.Day, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan exception: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate exceptions: %w", err)
	}
	return out, nil
}
