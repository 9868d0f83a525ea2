package scheduling

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusNoResponse  Status = "no_response"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
)

var statuses = []Status{StatusConfirmed, StatusNoResponse, StatusCancelled, StatusRescheduled, StatusCompleted}

func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// Blocking reports whether an appointment in this status occupies its slot.
func (s Status) Blocking() bool {
	return s != StatusCancelled && s != StatusRescheduled
}

// Modality is the kind of visit.
type Modality string

const (
	ModalityInPerson         Modality = "in_person"
	ModalityVirtual          Modality = "virtual"
	ModalityShockTherapy     Modality = "shock_therapy"
	ModalityCapillaryTherapy Modality = "capillary_therapy"
)

var modalities = []Modality{ModalityInPerson, ModalityVirtual, ModalityShockTherapy, ModalityCapillaryTherapy}

func ParseModality(s string) (Modality, error) {
	for _, m := range modalities {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &ValidationError{Field: "modality", Reason: fmt.Sprintf("unknown modality %q", s)}
}

// Appointment is a booked slot for one patient within one tenant.
//
// RescheduledFromID is never written. Repositories derive it on read from
// the non-deleted row whose RescheduledToID points here.
type Appointment struct {
	ID                uuid.UUID  `json:"id"`
	TenantID          string     `json:"tenant_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	Day               civil.Date `json:"day"`
	StartTime         civil.Time `json:"start_time"`
	EndTime           civil.Time `json:"end_time"`
	Modality          Modality   `json:"modality"`
	Location          *string    `json:"location,omitempty"`
	Status            Status     `json:"status"`
	Notes             *string    `json:"notes,omitempty"`
	RescheduledToID   *uuid.UUID `json:"rescheduled_to_id,omitempty"`
	RescheduledFromID *uuid.UUID `json:"rescheduled_from_id,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	DeletedByID       *string    `json:"deleted_by_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *Appointment) Slot() Slot {
	return Slot{Day: a.Day, Start: a.StartTime, End: a.EndTime}
}

func (a *Appointment) setSlot(s Slot) {
	a.Day, a.StartTime, a.EndTime = s.Day, s.Start, s.End
}

// Blocking reports whether the appointment currently occupies its slot.
func (a *Appointment) Blocking() bool {
	return a.DeletedAt == nil && a.Status.Blocking()
}

// Patient is the subset of a patient record scheduling depends on.
type Patient struct {
	ID                   uuid.UUID
	DisplayName          string
	Active               bool
	FirstAppointmentDate *civil.Date
}

// Filter narrows Query results. Zero fields are ignored.
type Filter struct {
	From      *civil.Date
	To        *civil.Date
	Status    *Status
	Modality  *Modality
	PatientID *uuid.UUID
	// Text matches notes, location or the patient's display name.
	Text string
}
