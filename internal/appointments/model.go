package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/schedule"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active reports whether the appointment occupies calendar time. Cancelled
// and completed appointments never block new bookings.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Role identifies which side of an appointment an actor is on.
type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleOperator
}

// Actor is whoever is attempting an operation on an appointment.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Appointment is one booked consultation. It references its doctor and
// patient by id only; traversal is always an explicit lookup. Appointments
// are never deleted: cancellation is a state transition so the audit trail
// survives.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctorId"`
	PatientID       uuid.UUID `json:"patientId"`
	StartAt         time.Time `json:"startAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          Status    `json:"status"`

	Reason       string `json:"reason"`
	Symptoms     string `json:"symptoms,omitempty"`
	PatientNotes string `json:"patientNotes,omitempty"`
	DoctorNotes  string `json:"doctorNotes,omitempty"`

	// Consultation outcome, set when the appointment completes.
	Diagnosis    string `json:"diagnosis,omitempty"`
	Treatment    string `json:"treatment,omitempty"`
	Prescription string `json:"prescription,omitempty"`

	CancelledBy        *uuid.UUID `json:"cancelledBy,omitempty"`
	CancelledRole      Role       `json:"cancelledRole,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Duration returns the appointment length.
func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Interval returns the half-open time range the appointment occupies.
func (a *Appointment) Interval() schedule.Interval {
	return schedule.NewInterval(a.StartAt, a.Duration())
}

// Outcome carries the consultation results attached atomically with the
// transition to completed.
type Outcome struct {
	Diagnosis    string `json:"diagnosis"`
	Treatment    string `json:"treatment,omitempty"`
	Prescription string `json:"prescription,omitempty"`
	DoctorNotes  string `json:"doctorNotes,omitempty"`
}

// BookingRequest is a patient's proposal for a new appointment.
type BookingRequest struct {
	DoctorID        uuid.UUID `json:"doctorId"`
	PatientID       uuid.UUID `json:"patientId"`
	StartAt         time.Time `json:"startAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Reason          string    `json:"reason"`
	Symptoms        string    `json:"symptoms,omitempty"`
	PatientNotes    string    `json:"patientNotes,omitempty"`
}

// Interval returns the time range the requested booking would occupy.
func (r *BookingRequest) Interval() schedule.Interval {
	return schedule.NewInterval(r.StartAt, time.Duration(r.DurationMinutes)*time.Minute)
}

// Validate checks request shape. Identity, calendar and conflict checks
// belong to the Validator pipeline, not here.
func (r *BookingRequest) Validate() *Rejection {
	if r.DoctorID == uuid.Nil {
		return Reject(KindValidation, "doctor id is required")
	}
	if r.PatientID == uuid.Nil {
		return Reject(KindValidation, "patient id is required")
	}
	if r.StartAt.IsZero() {
		return Reject(KindValidation, "start time is required")
	}
	if r.DurationMinutes <= 0 {
		return Reject(KindValidation, "duration must be positive")
	}
	if r.Reason == "" {
		return Reject(KindValidation, "reason is required")
	}
	return nil
}
