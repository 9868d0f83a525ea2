package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Conflict describes the appointment already holding a requested slot.
type Conflict struct {
	Appointment *Appointment
	PatientName string
}

// ConflictChecker finds blocking appointments that overlap a candidate slot.
type ConflictChecker struct {
	repo     AppointmentRepository
	patients PatientDirectory
}

func NewConflictChecker(repo AppointmentRepository, patients PatientDirectory) *ConflictChecker {
	return &ConflictChecker{repo: repo, patients: patients}
}

// Check returns the first blocking appointment overlapping slot, or nil when
// the slot is free. Appointments whose ids are in exclude are ignored.
func (c *ConflictChecker) Check(ctx context.Context, tenantID string, slot Slot, exclude ...uuid.UUID) (*Conflict, error) {
	existing, err := c.repo.ListBlockingOnDay(ctx, tenantID, slot.Day, exclude...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: conflict check: %w", err)
	}
	for _, a := range existing {
		if !slot.Overlaps(a.Slot()) {
			continue
		}
		conflict := &Conflict{Appointment: a, PatientName: "another patient"}
		p, err := c.patients.ResolvePatient(ctx, tenantID, a.PatientID)
		switch {
		case err == nil:
			conflict.PatientName = p.DisplayName
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("scheduling: resolve conflicting patient: %w", err)
		}
		return conflict, nil
	}
	return nil, nil
}
