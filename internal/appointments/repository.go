package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/schedule"
)

// maxAppointmentSpan bounds how far back a conflict query must look: no
// single appointment lasts longer than this.
const maxAppointmentSpan = 24 * time.Hour

// Filter narrows appointment listings.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository persists appointments. Create and Reschedule are the two
// commit paths and must serialize the check-then-write sequence per doctor:
// when two bookings race for the same window, exactly one succeeds and the
// other gets a slot_taken Rejection.
type Repository interface {
	// Create persists a new appointment atomically, re-checking conflicts
	// inside the same unit of work.
	Create(ctx context.Context, a *Appointment) error

	// GetByID loads an appointment or returns ErrAppointmentNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Update persists a state transition. The write only applies while the
	// stored status still equals expect; a lost race surfaces as an
	// invalid_state Rejection.
	Update(ctx context.Context, a *Appointment, expect Status) error

	// Reschedule atomically moves an active appointment to a new start,
	// re-checking conflicts (excluding the appointment itself) inside the
	// same unit of work.
	Reschedule(ctx context.Context, a *Appointment, newStart time.Time) (*Appointment, error)

	// ActiveByDoctorBetween returns the doctor's pending/confirmed
	// appointments intersecting [from, to), excluding the given id when set.
	ActiveByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time, exclude uuid.UUID) ([]*Appointment, error)

	// ListByDoctor returns the doctor's appointments, newest first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f Filter) ([]*Appointment, error)

	// ListByPatient returns the patient's appointments, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]*Appointment, error)
}

// busyIntervals projects active appointments onto their occupied ranges.
func busyIntervals(appts []*Appointment) []schedule.Interval {
	out := make([]schedule.Interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Interval())
	}
	return out
}
