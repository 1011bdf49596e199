package appointments

import (
	"time"
)

// The lifecycle graph: pending -> confirmed -> completed, with cancellation
// reachable from either non-terminal state. Terminal states accept nothing.
//
//	pending ──confirm──> confirmed
//	pending|confirmed ──complete──> completed
//	pending|confirmed ──cancel──> cancelled
//
// Each transition mutates the appointment in place and returns nil, or
// returns a Rejection and leaves it untouched.

// Confirm moves a pending appointment to confirmed. Only the owning doctor
// or an operator may confirm.
func Confirm(a *Appointment, actor Actor, now time.Time) *Rejection {
	if rej := requireDoctorSide(a, actor, "confirm"); rej != nil {
		return rej
	}
	if a.Status != StatusPending {
		return Reject(KindInvalidState, "only pending appointments can be confirmed, current state is %s", a.Status)
	}
	a.Status = StatusConfirmed
	a.UpdatedAt = now
	return nil
}

// Cancel moves an active appointment to cancelled, recording who cancelled,
// why and when. Either owning party or an operator may cancel; a reason is
// mandatory.
func Cancel(a *Appointment, actor Actor, reason string, now time.Time) *Rejection {
	if rej := requireParticipant(a, actor, "cancel"); rej != nil {
		return rej
	}
	if !a.Status.Active() {
		return Reject(KindInvalidState, "a %s appointment cannot be cancelled", a.Status)
	}
	if reason == "" {
		return Reject(KindValidation, "a cancellation reason is required")
	}
	actorID := actor.ID
	a.Status = StatusCancelled
	a.CancelledBy = &actorID
	a.CancelledRole = actor.Role
	a.CancellationReason = reason
	a.CancelledAt = &now
	a.UpdatedAt = now
	return nil
}

// Complete moves an active appointment to completed, attaching the
// consultation outcome atomically. Only the owning doctor or an operator may
// complete, and a diagnosis is mandatory.
func Complete(a *Appointment, actor Actor, outcome Outcome, now time.Time) *Rejection {
	if rej := requireDoctorSide(a, actor, "complete"); rej != nil {
		return rej
	}
	if !a.Status.Active() {
		return Reject(KindInvalidState, "a %s appointment cannot be completed", a.Status)
	}
	if outcome.Diagnosis == "" {
		return Reject(KindValidation, "a diagnosis is required to complete an appointment")
	}
	a.Status = StatusCompleted
	a.Diagnosis = outcome.Diagnosis
	a.Treatment = outcome.Treatment
	a.Prescription = outcome.Prescription
	if outcome.DoctorNotes != "" {
		a.DoctorNotes = outcome.DoctorNotes
	}
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// CanReschedule checks actor and state for a reschedule. The time checks run
// through the booking validator; this only guards the transition itself. A
// reschedule keeps the appointment's identity instead of cancel+recreate.
func CanReschedule(a *Appointment, actor Actor) *Rejection {
	if rej := requireParticipant(a, actor, "reschedule"); rej != nil {
		return rej
	}
	if !a.Status.Active() {
		return Reject(KindInvalidState, "a %s appointment cannot be rescheduled", a.Status)
	}
	return nil
}

// requireDoctorSide allows the owning doctor or an operator.
func requireDoctorSide(a *Appointment, actor Actor, verb string) *Rejection {
	switch actor.Role {
	case RoleOperator:
		return nil
	case RoleDoctor:
		if actor.ID == a.DoctorID {
			return nil
		}
		return Reject(KindForbidden, "only the appointment's doctor may %s it", verb)
	default:
		return Reject(KindForbidden, "a %s may not %s an appointment", actor.Role, verb)
	}
}

// requireParticipant allows either owning party or an operator.
func requireParticipant(a *Appointment, actor Actor, verb string) *Rejection {
	switch actor.Role {
	case RoleOperator:
		return nil
	case RoleDoctor:
		if actor.ID == a.DoctorID {
			return nil
		}
	case RolePatient:
		if actor.ID == a.PatientID {
			return nil
		}
	}
	return Reject(KindForbidden, "only the appointment's doctor or patient may %s it", verb)
}
