package scheduling

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/clinic/backoffice/internal/platform/audit"
	"github.com/google/uuid"
)

// PatientDirectory resolves patients owned by the patient registry.
type PatientDirectory interface {
	// ResolvePatient returns ErrPatientNotFound when the patient does not
	// exist in the tenant or has been deleted.
	ResolvePatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	// RecordFirstAppointment sets the first appointment date if none is set.
	RecordFirstAppointment(ctx context.Context, tenantID string, patientID uuid.UUID, day civil.Date) error
}

// BillingLedger counts payments recorded against an appointment.
type BillingLedger interface {
	CountPaymentsFor(ctx context.Context, tenantID string, appointmentID uuid.UUID) (int, error)
}

// AuditSink receives immutable records of destructive actions.
type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
	ListForEntity(ctx context.Context, tenantID, entityType string, entityID uuid.UUID) ([]audit.Entry, error)
}

// Transactor runs fn atomically. Store and collaborator calls made with the
// context passed to fn take part in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer is notified once per lifecycle operation.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}
