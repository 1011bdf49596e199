package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository resolves identities from the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Doctor fetches a doctor by id.
func (r *PostgresRepository) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	query := `
		SELECT id, full_name, specialty, active, created_at
		FROM doctors
		WHERE id = $1
	`
	var d Doctor
	err := r.pool.QueryRow(ctx, query, id).Scan(&d.ID, &d.FullName, &d.Specialty, &d.Active, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("directory: select doctor: %w", err)
	}
	return &d, nil
}

// Patient fetches a patient by id.
func (r *PostgresRepository) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	query := `
		SELECT id, full_name, active, created_at
		FROM patients
		WHERE id = $1
	`
	var p Patient
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.FullName, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("directory: select patient: %w", err)
	}
	return &p, nil
}
