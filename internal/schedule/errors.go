package schedule

import "errors"

var (
	// ErrMissingDoctor is returned when a rule or exception has no doctor id.
	ErrMissingDoctor = errors.New("schedule: doctor id is required")

	// ErrInvalidWindow is returned when a rule's window is malformed.
	ErrInvalidWindow = errors.New("schedule: invalid availability window")

	// ErrRuleNotFound is returned when an availability rule does not exist.
	ErrRuleNotFound = errors.New("schedule: availability rule not found")

	// ErrRuleOverlap is returned when a new rule collides with an existing
	// active rule on the same weekday.
	ErrRuleOverlap = errors.New("schedule: rule overlaps an existing rule")

	// ErrDuplicateException is returned when a day is already blocked.
	ErrDuplicateException = errors.New("schedule: exception already exists for that day")

	// ErrExceptionNotFound is returned when an exception does not exist.
	ErrExceptionNotFound = errors.New("schedule: exception not found")
)
