package patient

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/backoffice/internal/domain/scheduling"
)

// Directory adapts the patient registry to the scheduling engine.
type Directory struct {
	repo   Repository
	logger zerolog.Logger
}

func NewDirectory(repo Repository, logger zerolog.Logger) *Directory {
	return &Directory{repo: repo, logger: logger.With().Str("component", "patient_directory").Logger()}
}

func (d *Directory) ResolvePatient(ctx context.Context, tenantID string, id uuid.UUID) (*scheduling.Patient, error) {
	p, err := d.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, scheduling.ErrPatientNotFound
		}
		return nil, err
	}
	out := &scheduling.Patient{ID: p.ID, DisplayName: p.DisplayName, Active: p.Active}
	if p.FirstAppointmentDate != nil {
		first := civil.DateOf(*p.FirstAppointmentDate)
		out.FirstAppointmentDate = &first
	}
	return out, nil
}

func (d *Directory) RecordFirstAppointment(ctx context.Context, tenantID string, patientID uuid.UUID, day civil.Date) error {
	written, err := d.repo.SetFirstAppointmentDate(ctx, tenantID, patientID, day.In(time.UTC))
	if err != nil {
		return err
	}
	if written {
		d.logger.Debug().Str("tenant_id", tenantID).Str("patient_id", patientID.String()).
			Str("day", day.String()).Msg("first appointment date recorded")
	}
	return nil
}
