package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the domain layer translates into its own errors.
const (
	CodeExclusionViolation = "23P01"
	CodeUniqueViolation    = "23505"
)

// LockKey takes a transaction-scoped advisory lock on key. The lock is
// released automatically at commit or rollback, so callers serialize on
// the same key for the remainder of their transaction.
func LockKey(ctx context.Context, key string) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return ErrNoTx
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

// IsPgCode reports whether err wraps a Postgres error with the given SQLSTATE.
func IsPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
