package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository keeps calendars in process memory, for tests and local
// development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	rules      map[uuid.UUID]*Rule
	exceptions map[uuid.UUID]*Exception
}

// NewInMemoryRepository creates an empty in-memory schedule store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rules:      make(map[uuid.UUID]*Rule),
		exceptions: make(map[uuid.UUID]*Exception),
	}
}

// CreateRule validates and inserts a rule.
func (r *InMemoryRepository) CreateRule(_ context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.DoctorID == rule.DoctorID && existing.Active && rule.Active && existing.OverlapsRule(*rule) {
			return ErrRuleOverlap
		}
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	copied := *rule
	r.rules[rule.ID] = &copied
	return nil
}

// GetRule loads one rule by id.
func (r *InMemoryRepository) GetRule(_ context.Context, id uuid.UUID) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	copied := *rule
	return &copied, nil
}

// ListRules returns a doctor's rules ordered by weekday then start.
func (r *InMemoryRepository) ListRules(_ context.Context, doctorID uuid.UUID) ([]Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].StartMinutes < out[j].StartMinutes
	})
	return out, nil
}

// UpdateRule replaces a rule's window and active flag.
func (r *InMemoryRepository) UpdateRule(_ context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rules[rule.ID]
	if !ok {
		return ErrRuleNotFound
	}
	for _, existing := range r.rules {
		if existing.ID == rule.ID || existing.DoctorID != stored.DoctorID {
			continue
		}
		if existing.Active && rule.Active && existing.OverlapsRule(*rule) {
			return ErrRuleOverlap
		}
	}
	stored.Weekday = rule.Weekday
	stored.StartMinutes = rule.StartMinutes
	stored.EndMinutes = rule.EndMinutes
	stored.Active = rule.Active
	return nil
}

// DeleteRule removes a rule.
func (r *InMemoryRepository) DeleteRule(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(r.rules, id)
	return nil
}

// CreateException blocks a day, once.
func (r *InMemoryRepository) CreateException(_ context.Context, e *Exception) error {
	if e.DoctorID == uuid.Nil {
		return ErrMissingDoctor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.exceptions {
		if existing.DoctorID == e.DoctorID && sameDate(existing.Day, e.Day) {
			return ErrDuplicateException
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	copied := *e
	r.exceptions[e.ID] = &copied
	return nil
}

// GetException loads one exception by id.
func (r *InMemoryRepository) GetException(_ context.Context, id uuid.UUID) (*Exception, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exceptions[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	copied := *e
	return &copied, nil
}

// ListExceptions returns a doctor's blocked days ordered by date.
func (r *InMemoryRepository) ListExceptions(_ context.Context, doctorID uuid.UUID) ([]Exception, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Exception
	for _, e := range r.exceptions {
		if e.DoctorID == doctorID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// DeleteException unblocks a day.
func (r *InMemoryRepository) DeleteException(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(r.exceptions, id)
	return nil
}

// CalendarFor assembles the calendar from active rules and all exceptions.
func (r *InMemoryRepository) CalendarFor(_ context.Context, doctorID uuid.UUID) (Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cal := Calendar{}
	for _, rule := range r.rules {
		if rule.DoctorID == doctorID && rule.Active {
			cal.Rules = append(cal.Rules, *rule)
		}
	}
	for _, e := range r.exceptions {
		if e.DoctorID == doctorID {
			cal.Exceptions = append(cal.Exceptions, *e)
		}
	}
	return cal, nil
}
