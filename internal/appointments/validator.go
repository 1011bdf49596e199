package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/directory"
	"github.com/citasalud/citasalud-api/internal/schedule"
)

// Policy holds the deployment's booking constants.
type Policy struct {
	// MinLeadTime is how far in the future a booking must start.
	MinLeadTime time.Duration

	// HorizonDays caps how far ahead bookings may be placed. Zero means no
	// maximum.
	HorizonDays int

	// DefaultSlotMinutes is the slot length used when a request does not
	// override it.
	DefaultSlotMinutes int

	// Location is the practice timezone availability rules are written in.
	Location *time.Location
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// ScheduleStore loads a doctor's availability calendar.
type ScheduleStore interface {
	CalendarFor(ctx context.Context, doctorID uuid.UUID) (schedule.Calendar, error)
}

// Validator runs the ordered acceptance pipeline for a proposed booking.
// The first failing check wins, so rejection reasons are deterministic.
type Validator struct {
	directory directory.Lookup
	schedules ScheduleStore
	repo      Repository
	policy    Policy
}

// NewValidator wires the validator's collaborators.
func NewValidator(dir directory.Lookup, schedules ScheduleStore, repo Repository, policy Policy) *Validator {
	if dir == nil {
		panic("appointments: directory lookup required")
	}
	if schedules == nil {
		panic("appointments: schedule store required")
	}
	if repo == nil {
		panic("appointments: repository required")
	}
	return &Validator{directory: dir, schedules: schedules, repo: repo, policy: policy}
}

// ValidateBooking accepts or rejects a proposed booking. exclude removes one
// appointment from the conflict check, which is how a reschedule avoids
// colliding with itself. Rejections come back as *Rejection; anything else
// is an infrastructure fault.
func (v *Validator) ValidateBooking(ctx context.Context, req *BookingRequest, now time.Time, exclude uuid.UUID) error {
	// 1. The doctor must exist and accept bookings.
	doctor, err := v.directory.Doctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return Reject(KindNotFound, "doctor %s not found", req.DoctorID)
		}
		return fmt.Errorf("appointments: doctor lookup: %w", err)
	}
	if !doctor.Active {
		return Reject(KindValidation, "doctor %s is not accepting appointments", req.DoctorID)
	}

	// 2. Request shape and patient identity.
	if rej := req.Validate(); rej != nil {
		return rej
	}
	patient, err := v.directory.Patient(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return Reject(KindNotFound, "patient %s not found", req.PatientID)
		}
		return fmt.Errorf("appointments: patient lookup: %w", err)
	}
	if !patient.Active {
		return Reject(KindValidation, "patient %s is not active", req.PatientID)
	}

	// 3. Minimum lead time: the start must be strictly later than now+lead.
	if !req.StartAt.After(now.Add(v.policy.MinLeadTime)) {
		return Reject(KindLeadTime, "appointments must be booked at least %s in advance", v.policy.MinLeadTime)
	}

	// 4. Booking horizon, when configured.
	if v.policy.HorizonDays > 0 {
		horizon := now.AddDate(0, 0, v.policy.HorizonDays)
		if req.StartAt.After(horizon) {
			return Reject(KindLeadTime, "appointments cannot be booked more than %d days ahead", v.policy.HorizonDays)
		}
	}

	// 5. The whole interval must sit inside the doctor's availability.
	cal, err := v.schedules.CalendarFor(ctx, req.DoctorID)
	if err != nil {
		return fmt.Errorf("appointments: load calendar: %w", err)
	}
	cal.Location = v.policy.location()
	iv := req.Interval()
	if !cal.Covers(iv) {
		local := req.StartAt.In(v.policy.location())
		return Reject(KindOutOfAvailability, "the doctor has no availability on %s at %s",
			schedule.WeekdayName(local.Weekday()), local.Format("15:04"))
	}

	// 6. No overlap with the doctor's active appointments.
	existing, err := v.repo.ActiveByDoctorBetween(ctx, req.DoctorID, iv.Start.Add(-maxAppointmentSpan), iv.End, exclude)
	if err != nil {
		return fmt.Errorf("appointments: conflict scan: %w", err)
	}
	if hit := schedule.ConflictsWith(iv, busyIntervals(existing)); hit != nil {
		return RejectSlotTaken(*hit)
	}

	return nil
}
