package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists availability rules and exception days and assembles
// calendars from them.
type Repository interface {
	// CreateRule inserts a validated rule. It fails with ErrRuleOverlap when
	// the rule collides with an existing active rule on the same weekday.
	CreateRule(ctx context.Context, r *Rule) error

	// GetRule loads one rule by id, or ErrRuleNotFound.
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)

	// ListRules returns all of a doctor's rules ordered by weekday then start.
	ListRules(ctx context.Context, doctorID uuid.UUID) ([]Rule, error)

	// UpdateRule replaces a rule's window and active flag.
	UpdateRule(ctx context.Context, r *Rule) error

	// DeleteRule removes a rule.
	DeleteRule(ctx context.Context, id uuid.UUID) error

	// CreateException blocks a calendar day. At most one exception may exist
	// per doctor and day.
	CreateException(ctx context.Context, e *Exception) error

	// GetException loads one exception by id, or ErrExceptionNotFound.
	GetException(ctx context.Context, id uuid.UUID) (*Exception, error)

	// ListExceptions returns a doctor's exception days ordered by date.
	ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]Exception, error)

	// DeleteException unblocks a day.
	DeleteException(ctx context.Context, id uuid.UUID) error

	// CalendarFor assembles the doctor's calendar from active rules and
	// exceptions.
	CalendarFor(ctx context.Context, doctorID uuid.UUID) (Calendar, error)
}
