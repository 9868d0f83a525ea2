package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTx_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewTxManager(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, TxFromContext(ctx))
		_, err := Conn(ctx, mock).Exec(ctx, "UPDATE appointments SET notes = $1", "x")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = NewTxManager(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tm := NewTxManager(mock)
	err = tm.WithinTx(context.Background(), func(outer context.Context) error {
		return tm.WithinTx(outer, func(inner context.Context) error {
			assert.Equal(t, TxFromContext(outer), TxFromContext(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CommitErrorIsWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: CodeExclusionViolation})

	err = NewTxManager(mock).WithinTx(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, IsPgCode(err, CodeExclusionViolation))
	assert.False(t, IsPgCode(err, CodeUniqueViolation))
}

func TestConn_FallsBackWithoutTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	assert.Equal(t, Querier(mock), Conn(context.Background(), mock))
}

func TestLockKey(t *testing.T) {
	assert.ErrorIs(t, LockKey(context.Background(), "t/2026-01-01"), ErrNoTx)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("t/2026-01-01").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err = NewTxManager(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		return LockKey(ctx, "t/2026-01-01")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPgCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: CodeExclusionViolation}
	wrapped := fmt.Errorf("commit transaction: %w", pgErr)

	assert.True(t, IsPgCode(wrapped, CodeExclusionViolation))
	assert.False(t, IsPgCode(wrapped, CodeUniqueViolation))
	assert.False(t, IsPgCode(errors.New("plain"), CodeExclusionViolation))
	assert.False(t, IsPgCode(nil, CodeExclusionViolation))
}
