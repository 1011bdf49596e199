package appointments

import (
	"errors"
	"fmt"

	"github.com/citasalud/citasalud-api/internal/schedule"
)

// Kind classifies a business rejection so callers can react to it without
// parsing messages.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindOutOfAvailability Kind = "out_of_availability"
	KindLeadTime          Kind = "lead_time"
	KindSlotTaken         Kind = "slot_taken"
	KindForbidden         Kind = "forbidden"
	KindValidation        Kind = "validation"
)

// Rejection is a deterministic business outcome, not a fault. Callers must
// not retry it; the same request will be rejected again.
type Rejection struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// Conflict is set for slot_taken rejections: the interval already booked.
	Conflict *schedule.Interval `json:"conflict,omitempty"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// Reject builds a rejection of the given kind.
func Reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// RejectSlotTaken builds a slot_taken rejection carrying the busy interval.
func RejectSlotTaken(conflict schedule.Interval) *Rejection {
	return &Rejection{
		Kind:     KindSlotTaken,
		Message:  fmt.Sprintf("the doctor already has an appointment between %s and %s", conflict.Start.Format("15:04"), conflict.End.Format("15:04")),
		Conflict: &conflict,
	}
}

// AsRejection unwraps err into a Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ErrAppointmentNotFound is returned by repositories when an appointment id
// does not exist.
var ErrAppointmentNotFound = errors.New("appointments: appointment not found")

// ErrUnavailable tags storage and connectivity faults. Unlike a Rejection,
// the caller may retry these with backoff.
var ErrUnavailable = errors.New("appointments: storage unavailable")
