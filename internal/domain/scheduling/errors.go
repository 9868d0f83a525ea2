package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingTenant     = errors.New("tenant is required")
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError is returned when a requested slot overlaps an active
// appointment. Conflict is nil when the overlap was caught by the store's
// exclusion constraint rather than the checker.
type ConflictError struct {
	Conflict *Conflict
}

func (e *ConflictError) Error() string {
	if e.Conflict == nil {
		return "requested slot overlaps an active appointment"
	}
	return fmt.Sprintf("requested slot overlaps an appointment for %s at %s",
		e.Conflict.PatientName, e.Conflict.Appointment.Slot())
}

// PatientName returns the display name of the patient holding the slot, if known.
func (e *ConflictError) PatientName() string {
	if e.Conflict == nil {
		return ""
	}
	return e.Conflict.PatientName
}

// GuardedDeletionError is returned when an appointment with payments is
// asked to be deleted.
type GuardedDeletionError struct {
	AppointmentID string
	Payments      int
}

func (e *GuardedDeletionError) Error() string {
	return fmt.Sprintf("appointment has %d associated payment(s) and cannot be deleted; cancel it instead", e.Payments)
}
