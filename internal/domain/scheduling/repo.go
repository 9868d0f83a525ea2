package scheduling

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// AppointmentRepository is the tenant-scoped Appointment Store. Every method
// takes the tenant explicitly and never reads or writes another tenant's
// rows. Soft-deleted rows are invisible to all of them.
type AppointmentRepository interface {
	// Create assigns ID and timestamps and stores a under tenantID.
	Create(ctx context.Context, tenantID string, a *Appointment) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error)
	// GetForUpdate is Get that also locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, tenantID string, a *Appointment) error
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actorID string, at time.Time) error
	// ListBlockingOnDay returns appointments that occupy their slot on day,
	// ordered by start time, skipping the excluded ids.
	ListBlockingOnDay(ctx context.Context, tenantID string, day civil.Date, exclude ...uuid.UUID) ([]*Appointment, error)
	// Search returns one page ordered newest day/time first plus the total match count.
	Search(ctx context.Context, tenantID string, f Filter, limit, offset int) ([]*Appointment, int, error)
	// LockDay serializes check-then-write sequences for one tenant and day
	// until the surrounding transaction ends.
	LockDay(ctx context.Context, tenantID string, day civil.Date) error
}
