package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Doctor is the projection of a doctor the scheduling core needs: identity
// plus whether the doctor currently accepts bookings. Profile management
// itself lives outside this service.
type Doctor struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Specialty string    `json:"specialty,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Patient is the corresponding projection for patients.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrDoctorNotFound is returned when a doctor does not exist.
	ErrDoctorNotFound = errors.New("directory: doctor not found")

	// ErrPatientNotFound is returned when a patient does not exist.
	ErrPatientNotFound = errors.New("directory: patient not found")
)

// Lookup resolves doctors and patients by id.
type Lookup interface {
	Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Patient(ctx context.Context, id uuid.UUID) (*Patient, error)
}
