package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/directory"
	"github.com/citasalud/citasalud-api/internal/observability/metrics"
	"github.com/citasalud/citasalud-api/internal/schedule"
	"github.com/citasalud/citasalud-api/pkg/logging"
)

// maxLookaheadDays bounds the next-available-slot search.
const maxLookaheadDays = 30

// SlotCache fronts the advisory availability reads. The commit path never
// consults it; a stale entry can only cost a patient one rejected request.
type SlotCache interface {
	Get(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, bool)
	Put(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int, slots []time.Time)
	Invalidate(ctx context.Context, doctorID uuid.UUID)
}

// Service is the scheduling core's operation surface: availability reads,
// the booking commit, and the appointment lifecycle.
type Service struct {
	repo      Repository
	schedules ScheduleStore
	directory directory.Lookup
	validator *Validator
	policy    Policy
	cache     SlotCache
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService constructs the scheduling service.
func NewService(repo Repository, schedules ScheduleStore, dir directory.Lookup, policy Policy, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if schedules == nil {
		panic("appointments: schedule store required")
	}
	if dir == nil {
		panic("appointments: directory lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if policy.DefaultSlotMinutes <= 0 {
		policy.DefaultSlotMinutes = 30
	}
	return &Service{
		repo:      repo,
		schedules: schedules,
		directory: dir,
		validator: NewValidator(dir, schedules, repo, policy),
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithCache attaches a slot cache.
func (s *Service) WithCache(c SlotCache) *Service {
	s.cache = c
	return s
}

// WithMetrics attaches booking metrics.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListAvailableSlots returns the doctor's free slot starts for a date, in
// chronological order. The read is advisory: a returned slot can be taken by
// the time the patient books it, and only the commit path is race-free.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, error) {
	if _, err := s.directory.Doctor(ctx, doctorID); err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, Reject(KindNotFound, "doctor %s not found", doctorID)
		}
		return nil, unavailable(err)
	}
	if durationMinutes <= 0 {
		durationMinutes = s.policy.DefaultSlotMinutes
	}

	if s.cache != nil {
		if slots, ok := s.cache.Get(ctx, doctorID, day, durationMinutes); ok {
			s.metrics.ObserveSlotCache(true)
			return slots, nil
		}
		s.metrics.ObserveSlotCache(false)
	}

	slots, err := s.freeSlots(ctx, doctorID, day, durationMinutes)
	if err != nil {
		return nil, unavailable(err)
	}

	if s.cache != nil {
		s.cache.Put(ctx, doctorID, day, durationMinutes, slots)
	}
	return slots, nil
}

// NextAvailableSlots scans forward day by day, up to 30 days, until it has
// collected count free slots for the doctor.
func (s *Service) NextAvailableSlots(ctx context.Context, doctorID uuid.UUID, count int) ([]time.Time, error) {
	if _, err := s.directory.Doctor(ctx, doctorID); err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, Reject(KindNotFound, "doctor %s not found", doctorID)
		}
		return nil, unavailable(err)
	}
	if count <= 0 {
		count = 10
	}
	duration := s.policy.DefaultSlotMinutes
	today := s.now().In(s.policy.location())

	collected := make([]time.Time, 0, count)
	for d := 0; d < maxLookaheadDays && len(collected) < count; d++ {
		day := today.AddDate(0, 0, d)
		slots, err := s.freeSlots(ctx, doctorID, day, duration)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, slot := range slots {
			collected = append(collected, slot)
			if len(collected) == count {
				break
			}
		}
	}
	return collected, nil
}

// RequestBooking validates and atomically commits a new booking. On success
// the appointment starts its life as pending.
func (s *Service) RequestBooking(ctx context.Context, req *BookingRequest) (*Appointment, error) {
	now := s.now()
	if err := s.validator.ValidateBooking(ctx, req, now, uuid.Nil); err != nil {
		return nil, s.bookingOutcome(err)
	}

	a := &Appointment{
		ID:              uuid.New(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		StartAt:         req.StartAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          StatusPending,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		PatientNotes:    req.PatientNotes,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, s.bookingOutcome(err)
	}

	s.metrics.ObserveBooking("accepted")
	s.invalidateSlots(ctx, a.DoctorID)
	s.logger.Info("booking accepted",
		"appointment_id", a.ID,
		"doctor_id", a.DoctorID,
		"patient_id", a.PatientID,
		"start_at", a.StartAt,
	)
	return a, nil
}

// ConfirmAppointment moves a pending appointment to confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, "confirm", func(a *Appointment, now time.Time) *Rejection {
		return Confirm(a, actor, now)
	})
}

// CancelAppointment cancels an active appointment, recording actor and reason.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	a, err := s.transition(ctx, id, "cancel", func(a *Appointment, now time.Time) *Rejection {
		return Cancel(a, actor, reason, now)
	})
	if err == nil {
		s.invalidateSlots(ctx, a.DoctorID)
	}
	return a, err
}

// CompleteAppointment closes an active appointment with its consultation
// outcome.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, actor Actor, outcome Outcome) (*Appointment, error) {
	a, err := s.transition(ctx, id, "complete", func(a *Appointment, now time.Time) *Rejection {
		return Complete(a, actor, outcome, now)
	})
	if err == nil {
		s.invalidateSlots(ctx, a.DoctorID)
	}
	return a, err
}

// RescheduleAppointment moves an active appointment to a new start after
// re-running the booking validation with the appointment excluded from the
// conflict check. The appointment keeps its identity and history.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newStart time.Time, actor Actor) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.transitionOutcome("reschedule", err)
	}
	if rej := CanReschedule(a, actor); rej != nil {
		s.metrics.ObserveTransition("reschedule", string(rej.Kind))
		return nil, rej
	}

	req := &BookingRequest{
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		StartAt:         newStart,
		DurationMinutes: a.DurationMinutes,
		Reason:          a.Reason,
	}
	if err := s.validator.ValidateBooking(ctx, req, s.now(), a.ID); err != nil {
		return nil, s.transitionOutcome("reschedule", err)
	}

	updated, err := s.repo.Reschedule(ctx, a, newStart.UTC())
	if err != nil {
		return nil, s.transitionOutcome("reschedule", err)
	}

	s.metrics.ObserveTransition("reschedule", "ok")
	s.invalidateSlots(ctx, updated.DoctorID)
	s.logger.Info("appointment rescheduled",
		"appointment_id", updated.ID,
		"doctor_id", updated.DoctorID,
		"start_at", updated.StartAt,
	)
	return updated, nil
}

// GetAppointment loads one appointment.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, Reject(KindNotFound, "appointment %s not found", id)
		}
		return nil, unavailable(err)
	}
	return a, nil
}

// ListByDoctor returns a doctor's appointments.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f Filter) ([]*Appointment, error) {
	if _, err := s.directory.Doctor(ctx, doctorID); err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, Reject(KindNotFound, "doctor %s not found", doctorID)
		}
		return nil, unavailable(err)
	}
	out, err := s.repo.ListByDoctor(ctx, doctorID, f)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// ListByPatient returns a patient's appointments.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]*Appointment, error) {
	if _, err := s.directory.Patient(ctx, patientID); err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, Reject(KindNotFound, "patient %s not found", patientID)
		}
		return nil, unavailable(err)
	}
	out, err := s.repo.ListByPatient(ctx, patientID, f)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, op string, apply func(*Appointment, time.Time) *Rejection) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.transitionOutcome(op, err)
	}
	prev := a.Status
	if rej := apply(a, s.now().UTC()); rej != nil {
		s.metrics.ObserveTransition(op, string(rej.Kind))
		return nil, rej
	}
	if err := s.repo.Update(ctx, a, prev); err != nil {
		return nil, s.transitionOutcome(op, err)
	}
	s.metrics.ObserveTransition(op, "ok")
	s.logger.Info("appointment updated",
		"operation", op,
		"appointment_id", a.ID,
		"doctor_id", a.DoctorID,
		"status", a.Status,
	)
	return a, nil
}

func (s *Service) freeSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, error) {
	cal, err := s.schedules.CalendarFor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	cal.Location = s.policy.location()

	duration := time.Duration(durationMinutes) * time.Minute
	candidates := schedule.GenerateSlots(cal, day, duration, s.now(), s.policy.MinLeadTime)
	if len(candidates) == 0 {
		return candidates, nil
	}

	local := day.In(s.policy.location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.policy.location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	active, err := s.repo.ActiveByDoctorBetween(ctx, doctorID, dayStart.Add(-maxAppointmentSpan), dayEnd, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return schedule.FilterBooked(candidates, duration, busyIntervals(active)), nil
}

// bookingOutcome records the booking metric for err and passes it through.
func (s *Service) bookingOutcome(err error) error {
	if rej, ok := AsRejection(err); ok {
		s.metrics.ObserveBooking(string(rej.Kind))
		s.logger.Info("booking rejected", "kind", rej.Kind, "reason", rej.Message)
		return rej
	}
	s.metrics.ObserveBooking("error")
	s.logger.Error("booking failed", "error", err)
	return unavailable(err)
}

func (s *Service) transitionOutcome(op string, err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		err = Reject(KindNotFound, "appointment not found")
	}
	if rej, ok := AsRejection(err); ok {
		s.metrics.ObserveTransition(op, string(rej.Kind))
		return rej
	}
	s.metrics.ObserveTransition(op, "error")
	s.logger.Error("appointment "+op+" failed", "error", err)
	return unavailable(err)
}

func (s *Service) invalidateSlots(ctx context.Context, doctorID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, doctorID)
	}
}

// unavailable tags an infrastructure fault so callers can tell it apart from
// a business rejection and retry with backoff.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var rej *Rejection
	if errors.As(err, &rej) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
