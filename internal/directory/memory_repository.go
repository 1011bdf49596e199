package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a Lookup backed by process memory, used in tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]*Doctor
	patients map[uuid.UUID]*Patient
}

// NewInMemoryRepository creates an empty in-memory directory.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
	}
}

// AddDoctor registers a doctor.
func (r *InMemoryRepository) AddDoctor(d Doctor) *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	r.doctors[d.ID] = &d
	return &d
}

// AddPatient registers a patient.
func (r *InMemoryRepository) AddPatient(p Patient) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.patients[p.ID] = &p
	return &p
}

// Doctor implements Lookup.
func (r *InMemoryRepository) Doctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	copied := *d
	return &copied, nil
}

// Patient implements Lookup.
func (r *InMemoryRepository) Patient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	copied := *p
	return &copied, nil
}
