package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// maxChainLength bounds traversal in case stored links ever form a loop.
const maxChainLength = 256

// ChainManager maintains the rescheduled_to link between an appointment and
// the successor created when it was rescheduled.
type ChainManager struct {
	repo      AppointmentRepository
	conflicts *ConflictChecker
}

func NewChainManager(repo AppointmentRepository, conflicts *ConflictChecker) *ChainManager {
	return &ChainManager{repo: repo, conflicts: conflicts}
}

// Link marks original as rescheduled to successor. notes, when set,
// replace the original's notes; the successor keeps the cloned ones.
func (m *ChainManager) Link(ctx context.Context, tenantID string, original, successor *Appointment, notes *string) error {
	original.Status = StatusRescheduled
	original.RescheduledToID = &successor.ID
	if notes != nil {
		original.Notes = notes
	}
	if err := m.repo.Update(ctx, tenantID, original); err != nil {
		return fmt.Errorf("scheduling: link reschedule: %w", err)
	}
	successor.RescheduledFromID = &original.ID
	return nil
}

// Restore reopens the predecessor of successor, which is about to be
// deleted: the link is cleared and the predecessor is confirmed again in its
// original slot. It returns nil when there is no live predecessor. Restoring
// into a slot that was re-booked meanwhile fails with a ConflictError.
func (m *ChainManager) Restore(ctx context.Context, tenantID string, successor *Appointment) (*Appointment, error) {
	if successor.RescheduledFromID == nil {
		return nil, nil
	}
	pred, err := m.repo.GetForUpdate(ctx, tenantID, *successor.RescheduledFromID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: load predecessor: %w", err)
	}
	if pred.RescheduledToID == nil || *pred.RescheduledToID != successor.ID {
		return nil, nil
	}

	if err := m.repo.LockDay(ctx, tenantID, pred.Day); err != nil {
		return nil, fmt.Errorf("scheduling: lock day: %w", err)
	}
	conflict, err := m.conflicts.Check(ctx, tenantID, pred.Slot(), pred.ID, successor.ID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, &ConflictError{Conflict: conflict}
	}

	pred.Status = StatusConfirmed
	pred.RescheduledToID = nil
	if err := m.repo.Update(ctx, tenantID, pred); err != nil {
		return nil, fmt.Errorf("scheduling: restore predecessor: %w", err)
	}
	return pred, nil
}

// Chain returns every appointment linked to id by reschedules, oldest first.
func (m *ChainManager) Chain(ctx context.Context, tenantID string, id uuid.UUID) ([]*Appointment, error) {
	start, err := m.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var back []*Appointment
	cur := start
	for cur.RescheduledFromID != nil && len(back) < maxChainLength {
		prev, err := m.repo.Get(ctx, tenantID, *cur.RescheduledFromID)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		back = append(back, prev)
		cur = prev
	}

	chain := make([]*Appointment, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		chain = append(chain, back[i])
	}
	chain = append(chain, start)

	cur = start
	for cur.RescheduledToID != nil && len(chain) < maxChainLength {
		next, err := m.repo.Get(ctx, tenantID, *cur.RescheduledToID)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}
