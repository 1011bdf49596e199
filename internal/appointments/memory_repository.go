package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/schedule"
)

// InMemoryRepository stores appointments in process memory. A single mutex
// serializes every commit, which gives it the same race-freedom contract as
// the Postgres implementation. Used by tests and local development.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Appointment
}

// NewInMemoryRepository creates an empty in-memory appointment store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[uuid.UUID]*Appointment)}
}

// Create re-checks conflicts under the lock, then inserts.
func (r *InMemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hit := r.conflictLocked(a.DoctorID, a.Interval(), uuid.Nil); hit != nil {
		return RejectSlotTaken(*hit)
	}
	copied := *a
	r.items[a.ID] = &copied
	return nil
}

// GetByID loads a copy of an appointment.
func (r *InMemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

// Update applies a transition while the stored status is still expect.
func (r *InMemoryRepository) Update(_ context.Context, a *Appointment, expect Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if stored.Status != expect {
		return Reject(KindInvalidState, "appointment is %s, expected %s", stored.Status, expect)
	}
	copied := *a
	r.items[a.ID] = &copied
	return nil
}

// Reschedule moves the start under the lock, re-checking conflicts against
// everyone else.
func (r *InMemoryRepository) Reschedule(_ context.Context, a *Appointment, newStart time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !stored.Status.Active() {
		return nil, Reject(KindInvalidState, "a %s appointment cannot be rescheduled", stored.Status)
	}
	iv := schedule.NewInterval(newStart, stored.Duration())
	if hit := r.conflictLocked(stored.DoctorID, iv, stored.ID); hit != nil {
		return nil, RejectSlotTaken(*hit)
	}
	stored.StartAt = newStart
	stored.UpdatedAt = time.Now().UTC()
	copied := *stored
	return &copied, nil
}

// ActiveByDoctorBetween returns active appointments intersecting [from, to).
func (r *InMemoryRepository) ActiveByDoctorBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	window := schedule.Interval{Start: from, End: to}
	var out []*Appointment
	for _, a := range r.items {
		if a.DoctorID != doctorID || !a.Status.Active() || a.ID == exclude {
			continue
		}
		if a.Interval().Overlaps(window) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sortByStart(out)
	return out, nil
}

// ListByDoctor returns the doctor's appointments, newest first.
func (r *InMemoryRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID, f Filter) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.DoctorID == doctorID }, f), nil
}

// ListByPatient returns the patient's appointments, newest first.
func (r *InMemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, f Filter) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.PatientID == patientID }, f), nil
}

func (r *InMemoryRepository) list(match func(*Appointment) bool, f Filter) []*Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Appointment
	for _, a := range r.items {
		if !match(a) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.After(out[j].StartAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (r *InMemoryRepository) conflictLocked(doctorID uuid.UUID, iv schedule.Interval, exclude uuid.UUID) *schedule.Interval {
	for _, a := range r.items {
		if a.DoctorID != doctorID || !a.Status.Active() || a.ID == exclude {
			continue
		}
		if a.Interval().Overlaps(iv) {
			hit := a.Interval()
			return &hit
		}
	}
	return nil
}

func sortByStart(appts []*Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartAt.Before(appts[j].StartAt) })
}
