package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/backoffice/internal/platform/audit"
	"github.com/clinic/backoffice/internal/platform/db"
)

// BookRequest describes a new appointment. An empty Status books it confirmed.
type BookRequest struct {
	PatientID uuid.UUID
	Slot      Slot
	Modality  Modality
	Location  *string
	Notes     *string
	Status    Status
}

// UpdateRequest carries the fields to change; nil fields are left alone.
// An empty Location or Notes clears the field.
//
// Setting Status to rescheduled, or supplying Reschedule, turns the update
// into a reschedule. The new slot is Reschedule, or else the current slot
// overlaid with Day, StartTime and EndTime.
type UpdateRequest struct {
	PatientID  *uuid.UUID
	Day        *civil.Date
	StartTime  *civil.Time
	EndTime    *civil.Time
	Modality   *Modality
	Location   *string
	Notes      *string
	Status     *Status
	Reschedule *Slot
}

func (r UpdateRequest) wantsReschedule() bool {
	return r.Reschedule != nil || (r.Status != nil && *r.Status == StatusRescheduled)
}

// UpdateResult is the updated appointment plus, for a reschedule, the
// successor created for the new slot.
type UpdateResult struct {
	Appointment *Appointment `json:"appointment"`
	Successor   *Appointment `json:"successor,omitempty"`
}

// Service is the appointment lifecycle. Every mutation runs in one
// transaction spanning its conflict check and all of its writes.
type Service struct {
	repo      AppointmentRepository
	patients  PatientDirectory
	audit     AuditSink
	tx        Transactor
	conflicts *ConflictChecker
	chain     *ChainManager
	guard     *DeletionGuard
	observer  Observer
	logger    zerolog.Logger
	now       func() time.Time
}

const auditEntity = "appointment"

type Option func(*Service)

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo AppointmentRepository, patients PatientDirectory, ledger BillingLedger,
	sink AuditSink, tx Transactor, logger zerolog.Logger, opts ...Option) *Service {
	conflicts := NewConflictChecker(repo, patients)
	s := &Service{
		repo:      repo,
		patients:  patients,
		audit:     sink,
		tx:        tx,
		conflicts: conflicts,
		chain:     NewChainManager(repo, conflicts),
		guard:     NewDeletionGuard(ledger),
		logger:    logger.With().Str("component", "scheduling").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates an appointment after checking that its slot is free.
func (s *Service) Book(ctx context.Context, tenantID string, req BookRequest) (appt *Appointment, err error) {
	defer s.observe("book", time.Now(), &err)

	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if req.PatientID == uuid.Nil {
		return nil, &ValidationError{Field: "patient_id", Reason: "is required"}
	}
	if err := req.Slot.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseModality(string(req.Modality)); err != nil {
		return nil, err
	}
	status := StatusConfirmed
	if req.Status != "" {
		if status, err = ParseStatus(string(req.Status)); err != nil {
			return nil, err
		}
		if status == StatusRescheduled {
			return nil, &ValidationError{Field: "status", Reason: "an appointment cannot be booked as rescheduled", Err: ErrInvalidTransition}
		}
	}

	a := &Appointment{
		PatientID: req.PatientID,
		Modality:  req.Modality,
		Location:  nullable(req.Location),
		Status:    status,
		Notes:     nullable(req.Notes),
	}
	a.setSlot(req.Slot)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.activePatient(ctx, tenantID, req.PatientID)
		if err != nil {
			return err
		}
		if a.Status.Blocking() {
			if err := s.occupy(ctx, tenantID, a.Slot()); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, tenantID, a); err != nil {
			return fmt.Errorf("scheduling: create appointment: %w", err)
		}
		if p.FirstAppointmentDate == nil {
			if err := s.patients.RecordFirstAppointment(ctx, tenantID, p.ID, a.Day); err != nil {
				return fmt.Errorf("scheduling: record first appointment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", a.ID.String()).
		Str("slot", a.Slot().String()).Msg("appointment booked")
	return a, nil
}

// Update applies a field update, a status transition or a reschedule.
func (s *Service) Update(ctx context.Context, tenantID string, id uuid.UUID, req UpdateRequest) (res *UpdateResult, err error) {
	op := "update"
	if req.wantsReschedule() {
		op = "reschedule"
	}
	defer s.observe(op, time.Now(), &err)

	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if req.Status != nil {
		if _, err := ParseStatus(string(*req.Status)); err != nil {
			return nil, err
		}
	}
	if req.Modality != nil {
		if _, err := ParseModality(string(*req.Modality)); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if req.wantsReschedule() {
			res, err = s.reschedule(ctx, tenantID, current, req)
			return err
		}
		updated, err := s.applyUpdate(ctx, tenantID, current, req)
		if err != nil {
			return err
		}
		res = &UpdateResult{Appointment: updated}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

func (s *Service) applyUpdate(ctx context.Context, tenantID string, current *Appointment, req UpdateRequest) (*Appointment, error) {
	next := *current
	switch {
	case req.Status != nil:
		if !CanTransition(current.Status, *req.Status) {
			return nil, transitionError(current.Status, *req.Status)
		}
		next.Status = *req.Status
	case current.Status == StatusRescheduled:
		return nil, &ValidationError{Field: "status", Reason: "a rescheduled appointment cannot be edited", Err: ErrInvalidTransition}
	}

	if req.PatientID != nil && *req.PatientID != current.PatientID {
		if _, err := s.activePatient(ctx, tenantID, *req.PatientID); err != nil {
			return nil, err
		}
		next.PatientID = *req.PatientID
	}
	if req.Day != nil {
		next.Day = *req.Day
	}
	if req.StartTime != nil {
		next.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		next.EndTime = *req.EndTime
	}
	if req.Modality != nil {
		next.Modality = *req.Modality
	}
	if req.Location != nil {
		next.Location = nullable(req.Location)
	}
	if req.Notes != nil {
		next.Notes = nullable(req.Notes)
	}

	slot := next.Slot()
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	moved := slot != current.Slot()
	reopened := !current.Status.Blocking() && next.Status.Blocking()
	if next.Status.Blocking() && (moved || reopened) {
		if err := s.occupy(ctx, tenantID, slot, current.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, tenantID, &next); err != nil {
		return nil, fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if current.Status != next.Status {
		s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", next.ID.String()).
			Str("from", string(current.Status)).Str("to", string(next.Status)).Msg("appointment status changed")
	}
	return &next, nil
}

// reschedule books original's replacement in a new slot and links the two.
func (s *Service) reschedule(ctx context.Context, tenantID string, original *Appointment, req UpdateRequest) (*UpdateResult, error) {
	if req.Status != nil && *req.Status != StatusRescheduled {
		return nil, &ValidationError{Field: "status", Reason: "a reschedule target requires status rescheduled"}
	}
	if req.PatientID != nil || req.Modality != nil || req.Location != nil {
		return nil, &ValidationError{Field: "reschedule", Reason: "only notes may accompany a reschedule"}
	}
	if !CanTransition(original.Status, StatusRescheduled) {
		return nil, transitionError(original.Status, StatusRescheduled)
	}

	target := original.Slot()
	overlay := req.Day != nil || req.StartTime != nil || req.EndTime != nil
	switch {
	case req.Reschedule != nil && overlay:
		return nil, &ValidationError{Field: "reschedule", Reason: "give the new slot either as reschedule or as day/start_time/end_time"}
	case req.Reschedule != nil:
		target = *req.Reschedule
	case overlay:
		if req.Day != nil {
			target.Day = *req.Day
		}
		if req.StartTime != nil {
			target.Start = *req.StartTime
		}
		if req.EndTime != nil {
			target.End = *req.EndTime
		}
	default:
		return nil, &ValidationError{Field: "reschedule", Reason: "a new day or time is required"}
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if err := s.occupy(ctx, tenantID, target, original.ID); err != nil {
		return nil, err
	}

	successor := &Appointment{
		PatientID: original.PatientID,
		Modality:  original.Modality,
		Location:  original.Location,
		Notes:     original.Notes,
		Status:    StatusConfirmed,
	}
	successor.setSlot(target)
	if err := s.repo.Create(ctx, tenantID, successor); err != nil {
		return nil, fmt.Errorf("scheduling: create successor: %w", err)
	}
	if err := s.chain.Link(ctx, tenantID, original, successor, nullable(req.Notes)); err != nil {
		return nil, err
	}

	s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", original.ID.String()).
		Str("successor_id", successor.ID.String()).Str("slot", target.String()).Msg("appointment rescheduled")
	return &UpdateResult{Appointment: original, Successor: successor}, nil
}

// Delete soft-deletes an appointment that has no payments. Deleting a
// reschedule successor confirms its predecessor again.
func (s *Service) Delete(ctx context.Context, tenantID string, id uuid.UUID, actorID string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if tenantID == "" {
		return ErrMissingTenant
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		target, err := s.repo.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}

		outcome, err := s.guard.Check(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !outcome.Allowed {
			s.logger.Warn().Str("tenant_id", tenantID).Str("appointment_id", id.String()).
				Int("payments", outcome.Payments).Msg("deletion refused: appointment has payments")
			return &GuardedDeletionError{AppointmentID: id.String(), Payments: outcome.Payments}
		}

		before, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("scheduling: snapshot appointment: %w", err)
		}

		restored, err := s.chain.Restore(ctx, tenantID, target)
		if err != nil {
			return err
		}

		if err := s.repo.SoftDelete(ctx, tenantID, id, actorID, s.now().UTC()); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, audit.Entry{
			TenantID:   tenantID,
			ActorID:    actorID,
			Action:     audit.ActionDelete,
			EntityType: auditEntity,
			EntityID:   id,
			Before:     before,
		}); err != nil {
			return fmt.Errorf("scheduling: audit delete: %w", err)
		}

		ev := s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", id.String())
		if restored != nil {
			ev = ev.Str("restored_id", restored.ID.String())
		}
		ev.Msg("appointment deleted")
		return nil
	})
	return translate(err)
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	return s.repo.Get(ctx, tenantID, id)
}

// History returns the audit trail of an appointment, newest first. Deleted
// appointments keep their trail.
func (s *Service) History(ctx context.Context, tenantID string, id uuid.UUID) ([]audit.Entry, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	entries, err := s.audit.ListForEntity(ctx, tenantID, auditEntity, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: audit history: %w", err)
	}
	return entries, nil
}

// Query lists appointments newest day/time first.
func (s *Service) Query(ctx context.Context, tenantID string, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if tenantID == "" {
		return nil, 0, ErrMissingTenant
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, &ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.Search(ctx, tenantID, f, limit, offset)
}

// Chain returns the reschedule chain containing id, oldest first.
func (s *Service) Chain(ctx context.Context, tenantID string, id uuid.UUID) ([]*Appointment, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	return s.chain.Chain(ctx, tenantID, id)
}

// occupy serializes on the slot's day and fails if the slot is taken.
func (s *Service) occupy(ctx context.Context, tenantID string, slot Slot, exclude ...uuid.UUID) error {
	if err := s.repo.LockDay(ctx, tenantID, slot.Day); err != nil {
		return fmt.Errorf("scheduling: lock day: %w", err)
	}
	conflict, err := s.conflicts.Check(ctx, tenantID, slot, exclude...)
	if err != nil {
		return err
	}
	if conflict != nil {
		s.logger.Info().Str("tenant_id", tenantID).Str("slot", slot.String()).
			Str("conflicting_id", conflict.Appointment.ID.String()).Msg("slot conflict")
		return &ConflictError{Conflict: conflict}
	}
	return nil
}

func (s *Service) activePatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.ResolvePatient(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Service) observe(op string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveOperation(op, Outcome(*err), time.Since(start))
}

// Outcome classifies an operation result for metrics and logs.
func Outcome(err error) string {
	var ce *ConflictError
	var ge *GuardedDeletionError
	var ve *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ge):
		return "guarded"
	case errors.As(err, &ve), errors.Is(err, ErrMissingTenant):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// translate maps the exclusion constraint backstop onto ConflictError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConflictError
	if !errors.As(err, &ce) && db.IsPgCode(err, db.CodeExclusionViolation) {
		return &ConflictError{}
	}
	return err
}

func transitionError(from, to Status) error {
	return &ValidationError{
		Field:  "status",
		Reason: fmt.Sprintf("cannot change status from %s to %s", from, to),
		Err:    ErrInvalidTransition,
	}
}

func nullable(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
