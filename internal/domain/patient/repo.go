package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/backoffice/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	// SetFirstAppointmentDate reports whether the date was written. An
	// already recorded date is left untouched.
	SetFirstAppointmentDate(ctx context.Context, tenantID string, id uuid.UUID, day time.Time) (bool, error)
}

type patientRepoPG struct{ conn db.Querier }

func NewRepoPG(conn db.Querier) Repository { return &patientRepoPG{conn: conn} }

func (r *patientRepoPG) q(ctx context.Context) db.Querier { return db.Conn(ctx, r.conn) }

func (r *patientRepoPG) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, display_name, active, first_appointment_date, created_at
		FROM patients
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.DisplayName, &p.Active, &p.FirstAppointmentDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (r *patientRepoPG) SetFirstAppointmentDate(ctx context.Context, tenantID string, id uuid.UUID, day time.Time) (bool, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE patients SET first_appointment_date = $3
		WHERE tenant_id = $1 AND id = $2 AND first_appointment_date IS NULL`, tenantID, id, day)
	if err != nil {
		return false, fmt.Errorf("set first appointment date: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
