package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinic/backoffice/internal/platform/db"
)

type appointmentRepoPG struct{ conn db.Querier }

func NewAppointmentRepoPG(conn db.Querier) AppointmentRepository {
	return &appointmentRepoPG{conn: conn}
}

func (r *appointmentRepoPG) q(ctx context.Context) db.Querier { return db.Conn(ctx, r.conn) }

const apptCols = `a.id, a.tenant_id, a.patient_id, a.day, a.start_time, a.end_time,
	a.modality, a.location, a.status, a.notes, a.rescheduled_to_id,
	(SELECT p.id FROM appointments p
		WHERE p.tenant_id = a.tenant_id AND p.rescheduled_to_id = a.id AND p.deleted_at IS NULL) AS rescheduled_from_id,
	a.deleted_at, a.deleted_by_id, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	var start, end pgtype.Time
	var modality, status string
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &day, &start, &end,
		&modality, &a.Location, &status, &a.Notes, &a.RescheduledToID,
		&a.RescheduledFromID, &a.DeletedAt, &a.DeletedByID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Day = civil.DateOf(day)
	a.StartTime = clockFromPG(start)
	a.EndTime = clockFromPG(end)
	a.Modality = Modality(modality)
	a.Status = Status(status)
	return &a, nil
}

func clockToPG(t civil.Time) pgtype.Time {
	return pgtype.Time{Microseconds: clockNanos(t) / int64(time.Microsecond), Valid: true}
}

func clockFromPG(t pgtype.Time) civil.Time {
	d := time.Duration(t.Microseconds) * time.Microsecond
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}

func dayToPG(d civil.Date) time.Time { return d.In(time.UTC) }

func (r *appointmentRepoPG) Create(ctx context.Context, tenantID string, a *Appointment) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	a.ID = uuid.New()
	a.TenantID = tenantID
	err := r.q(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, patient_id, day, start_time, end_time,
			modality, location, status, notes, rescheduled_to_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, tenantID, a.PatientID, dayToPG(a.Day), clockToPG(a.StartTime), clockToPG(a.EndTime),
		string(a.Modality), a.Location, string(a.Status), a.Notes, a.RescheduledToID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.q(ctx).QueryRow(ctx, `SELECT `+apptCols+`
		FROM appointments a
		WHERE a.tenant_id = $1 AND a.id = $2 AND a.deleted_at IS NULL`, tenantID, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.q(ctx).QueryRow(ctx, `SELECT `+apptCols+`
		FROM appointments a
		WHERE a.tenant_id = $1 AND a.id = $2 AND a.deleted_at IS NULL
		FOR UPDATE OF a`, tenantID, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, tenantID string, a *Appointment) error {
	err := r.q(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id=$3, day=$4, start_time=$5, end_time=$6,
			modality=$7, location=$8, status=$9, notes=$10, rescheduled_to_id=$11, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING updated_at`,
		tenantID, a.ID, a.PatientID, dayToPG(a.Day), clockToPG(a.StartTime), clockToPG(a.EndTime),
		string(a.Modality), a.Location, string(a.Status), a.Notes, a.RescheduledToID,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, actorID string, at time.Time) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE appointments SET deleted_at=$3, deleted_by_id=$4
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, id, at, actor)
	if err != nil {
		return fmt.Errorf("soft delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListBlockingOnDay(ctx context.Context, tenantID string, day civil.Date, exclude ...uuid.UUID) ([]*Appointment, error) {
	excluded := make([]string, 0, len(exclude))
	for _, id := range exclude {
		excluded = append(excluded, id.String())
	}
	rows, err := r.q(ctx).Query(ctx, `SELECT `+apptCols+`
		FROM appointments a
		WHERE a.tenant_id = $1 AND a.day = $2 AND a.deleted_at IS NULL
			AND a.status NOT IN ('cancelled', 'rescheduled')
			AND a.id::text <> ALL($3)
		ORDER BY a.start_time`, tenantID, dayToPG(day), excluded)
	if err != nil {
		return nil, fmt.Errorf("list appointments on %s: %w", day, err)
	}
	return collect(rows)
}

func (r *appointmentRepoPG) Search(ctx context.Context, tenantID string, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE a.tenant_id = $1 AND a.deleted_at IS NULL`
	args := []any{tenantID}
	idx := 2

	if f.From != nil {
		where += fmt.Sprintf(` AND a.day >= $%d`, idx)
		args = append(args, dayToPG(*f.From))
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND a.day <= $%d`, idx)
		args = append(args, dayToPG(*f.To))
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, string(*f.Status))
		idx++
	}
	if f.Modality != nil {
		where += fmt.Sprintf(` AND a.modality = $%d`, idx)
		args = append(args, string(*f.Modality))
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Text != "" {
		where += fmt.Sprintf(` AND (a.notes ILIKE $%[1]d ESCAPE '\' OR a.location ILIKE $%[1]d ESCAPE '\' OR EXISTS (
			SELECT 1 FROM patients pt
			WHERE pt.tenant_id = a.tenant_id AND pt.id = a.patient_id AND pt.display_name ILIKE $%[1]d ESCAPE '\'))`, idx)
		args = append(args, "%"+likeEscaper.Replace(f.Text)+"%")
		idx++
	}

	var total int
	if err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointments a` + where +
		fmt.Sprintf(` ORDER BY a.day DESC, a.start_time DESC, a.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search appointments: %w", err)
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// likeEscaper makes user text match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *appointmentRepoPG) LockDay(ctx context.Context, tenantID string, day civil.Date) error {
	return db.LockKey(ctx, tenantID+"/"+day.String())
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
