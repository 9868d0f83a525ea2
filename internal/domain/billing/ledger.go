package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/backoffice/internal/platform/db"
)

// Ledger answers payment questions for other domains. Payments are
// attached to appointments directly; plan or package purchases are not
// counted against a single appointment.
type Ledger struct{ conn db.Querier }

func NewLedger(conn db.Querier) *Ledger { return &Ledger{conn: conn} }

func (l *Ledger) CountPaymentsFor(ctx context.Context, tenantID string, appointmentID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, l.conn).QueryRow(ctx, `
		SELECT COUNT(*) FROM payments
		WHERE tenant_id = $1 AND appointment_id = $2`, tenantID, appointmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}
