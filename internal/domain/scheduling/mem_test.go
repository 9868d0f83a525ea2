package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/clinic/backoffice/internal/platform/audit"
)

// memStore backs every collaborator of Service in memory. WithinTx
// serializes transactions and restores a snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	appts    map[uuid.UUID]*Appointment
	patients map[uuid.UUID]*memPatient
	payments map[uuid.UUID]int
	audits   []audit.Entry

	firstAppointmentCalls int
	failUpdate            func(*Appointment) error
	// trace records day locks and blocking-list reads in call order.
	trace []string
}

type memPatient struct {
	tenantID string
	deleted  bool
	Patient
}

type memSnapshot struct {
	appts    map[uuid.UUID]*Appointment
	patients map[uuid.UUID]*memPatient
	audits   []audit.Entry
}

func newMemStore() *memStore {
	return &memStore{
		appts:    make(map[uuid.UUID]*Appointment),
		patients: make(map[uuid.UUID]*memPatient),
		payments: make(map[uuid.UUID]int),
	}
}

func (s *memStore) addPatient(tenantID, name string, active bool) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.patients[id] = &memPatient{tenantID: tenantID, Patient: Patient{ID: id, DisplayName: name, Active: active}}
	return id
}

func (s *memStore) firstAppointment(id uuid.UUID) *civil.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patients[id]; ok && p.FirstAppointmentDate != nil {
		d := *p.FirstAppointmentDate
		return &d
	}
	return nil
}

func (s *memStore) addPayment(appointmentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[appointmentID]++
}

// raw returns the stored row, deleted or not, with derived fields filled.
func (s *memStore) raw(id uuid.UUID) *Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil
	}
	return s.derive(a)
}

func (s *memStore) all() []*Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, s.derive(a))
	}
	return out
}

func (s *memStore) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.trace...)
}

func (s *memStore) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = nil
}

func (s *memStore) auditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.audits...)
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		appts:    make(map[uuid.UUID]*Appointment, len(s.appts)),
		patients: make(map[uuid.UUID]*memPatient, len(s.patients)),
		audits:   append([]audit.Entry(nil), s.audits...),
	}
	for id, a := range s.appts {
		c := *a
		snap.appts[id] = &c
	}
	for id, p := range s.patients {
		c := *p
		snap.patients[id] = &c
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts, s.patients, s.audits = snap.appts, snap.patients, snap.audits
}

// -- Transactor --

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// -- AppointmentRepository --

func (s *memStore) derive(a *Appointment) *Appointment {
	c := *a
	c.RescheduledFromID = nil
	for _, p := range s.appts {
		if p.TenantID == a.TenantID && p.DeletedAt == nil && p.RescheduledToID != nil && *p.RescheduledToID == a.ID {
			id := p.ID
			c.RescheduledFromID = &id
		}
	}
	return &c
}

func (s *memStore) Create(_ context.Context, tenantID string, a *Appointment) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	a.TenantID = tenantID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	c := *a
	c.RescheduledFromID = nil
	s.appts[a.ID] = &c
	return nil
}

func (s *memStore) Get(_ context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID || a.DeletedAt != nil {
		return nil, ErrAppointmentNotFound
	}
	return s.derive(a), nil
}

func (s *memStore) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	return s.Get(ctx, tenantID, id)
}

func (s *memStore) Update(_ context.Context, tenantID string, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.appts[a.ID]
	if !ok || cur.TenantID != tenantID || cur.DeletedAt != nil {
		return ErrAppointmentNotFound
	}
	if s.failUpdate != nil {
		if err := s.failUpdate(a); err != nil {
			return err
		}
	}
	a.UpdatedAt = time.Now()
	c := *a
	c.TenantID = cur.TenantID
	c.CreatedAt = cur.CreatedAt
	c.RescheduledFromID = nil
	s.appts[a.ID] = &c
	return nil
}

func (s *memStore) SoftDelete(_ context.Context, tenantID string, id uuid.UUID, actorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.TenantID != tenantID || a.DeletedAt != nil {
		return ErrAppointmentNotFound
	}
	a.DeletedAt = &at
	if actorID != "" {
		a.DeletedByID = &actorID
	}
	return nil
}

func (s *memStore) ListBlockingOnDay(_ context.Context, tenantID string, day civil.Date, exclude ...uuid.UUID) ([]*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = append(s.trace, "list "+tenantID+"/"+day.String())
	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*Appointment
	for _, a := range s.appts {
		if a.TenantID != tenantID || a.Day != day || !a.Blocking() || skip[a.ID] {
			continue
		}
		out = append(out, s.derive(a))
	}
	sort.Slice(out, func(i, j int) bool { return clockNanos(out[i].StartTime) < clockNanos(out[j].StartTime) })
	return out, nil
}

func (s *memStore) Search(_ context.Context, tenantID string, f Filter, limit, offset int) ([]*Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*Appointment
	for _, a := range s.appts {
		if a.TenantID != tenantID || a.DeletedAt != nil {
			continue
		}
		if f.From != nil && a.Day.Before(*f.From) {
			continue
		}
		if f.To != nil && a.Day.After(*f.To) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Modality != nil && a.Modality != *f.Modality {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Text != "" && !s.matchesText(a, f.Text) {
			continue
		}
		matched = append(matched, s.derive(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Day != matched[j].Day {
			return matched[j].Day.Before(matched[i].Day)
		}
		return clockNanos(matched[i].StartTime) > clockNanos(matched[j].StartTime)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *memStore) matchesText(a *Appointment, text string) bool {
	text = strings.ToLower(text)
	if a.Notes != nil && strings.Contains(strings.ToLower(*a.Notes), text) {
		return true
	}
	if a.Location != nil && strings.Contains(strings.ToLower(*a.Location), text) {
		return true
	}
	p, ok := s.patients[a.PatientID]
	return ok && strings.Contains(strings.ToLower(p.DisplayName), text)
}

func (s *memStore) LockDay(_ context.Context, tenantID string, day civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = append(s.trace, "lock "+tenantID+"/"+day.String())
	return nil
}

// -- PatientDirectory --

func (s *memStore) ResolvePatient(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.tenantID != tenantID || p.deleted {
		return nil, ErrPatientNotFound
	}
	c := p.Patient
	return &c, nil
}

func (s *memStore) RecordFirstAppointment(_ context.Context, tenantID string, patientID uuid.UUID, day civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstAppointmentCalls++
	p, ok := s.patients[patientID]
	if !ok || p.tenantID != tenantID {
		return ErrPatientNotFound
	}
	if p.FirstAppointmentDate == nil {
		p.FirstAppointmentDate = &day
	}
	return nil
}

// -- BillingLedger --

func (s *memStore) CountPaymentsFor(_ context.Context, _ string, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[appointmentID], nil
}

// -- AuditSink --

func (s *memStore) Record(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) ListForEntity(_ context.Context, tenantID, entityType string, entityID uuid.UUID) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for i := len(s.audits) - 1; i >= 0; i-- {
		e := s.audits[i]
		if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}
