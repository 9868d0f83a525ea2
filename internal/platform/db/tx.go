package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Beginner is a Querier that can open transactions. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type Beginner interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrNoTx is returned by helpers that must run inside WithinTx.
var ErrNoTx = errors.New("db: no transaction in context")

type txKey struct{}

// TxFromContext returns the transaction opened by WithinTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Conn returns the transaction bound to ctx, or fallback when none is open.
// Repositories call this so their writes join the caller's transaction.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// TxManager runs units of work inside a single database transaction.
type TxManager struct {
	pool Beginner
}

func NewTxManager(pool Beginner) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx runs fn in a transaction carried by the context passed to fn.
// A nested call joins the outer transaction. fn returning an error, or a
// failed commit, rolls everything back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
