package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinic/backoffice/internal/platform/db"
	"github.com/google/uuid"
)

// Entry is one row of the audit_log table. Before holds a JSON snapshot of
// the entity as it was prior to the action.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   string          `json:"tenant_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Actions recorded by the back office.
const (
	ActionDelete = "delete"
)

// Store writes audit entries. Inside db.TxManager.WithinTx the insert joins
// the caller's transaction so the entry commits or rolls back with the action.
type Store struct {
	conn db.Querier
	now  func() time.Time
}

func NewStore(conn db.Querier) *Store {
	return &Store{conn: conn, now: time.Now}
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.TenantID == "" {
		return fmt.Errorf("audit: tenant is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	var actor *string
	if e.ActorID != "" {
		actor = &e.ActorID
	}
	var before []byte
	if len(e.Before) > 0 {
		before = e.Before
	}

	_, err := db.Conn(ctx, s.conn).Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, actor_id, action, entity_type, entity_id, before, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, actor, e.Action, e.EntityType, e.EntityID, before, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListForEntity returns the audit trail of one entity, newest first.
func (s *Store) ListForEntity(ctx context.Context, tenantID, entityType string, entityID uuid.UUID) ([]Entry, error) {
	rows, err := db.Conn(ctx, s.conn).Query(ctx, `
		SELECT id, tenant_id, actor_id, action, entity_type, entity_id, before, created_at
		FROM audit_log
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC`, tenantID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actor *string
		var before []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &actor, &e.Action, &e.EntityType, &e.EntityID, &before, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor != nil {
			e.ActorID = *actor
		}
		e.Before = before
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
