package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GuardOutcome is the Deletion Guard's verdict for one appointment.
type GuardOutcome struct {
	Allowed  bool
	Payments int
}

// DeletionGuard refuses deletion of appointments that have payments.
type DeletionGuard struct {
	ledger BillingLedger
}

func NewDeletionGuard(ledger BillingLedger) *DeletionGuard {
	return &DeletionGuard{ledger: ledger}
}

func (g *DeletionGuard) Check(ctx context.Context, tenantID string, appointmentID uuid.UUID) (GuardOutcome, error) {
	n, err := g.ledger.CountPaymentsFor(ctx, tenantID, appointmentID)
	if err != nil {
		return GuardOutcome{}, fmt.Errorf("scheduling: count payments: %w", err)
	}
	return GuardOutcome{Allowed: n == 0, Payments: n}, nil
}
