package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx подменяет только исходы Commit/Rollback; остальные методы
// pgx.Tx в этих тестах не вызываются.
type fakeTx struct {
	pgx.Tx

	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestInTxCommitErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{commitErr: assert.AnError}
	m := &PgTxManager{}

	err := m.inTx(ctx, &fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return nil
	})

	require.ErrorIs(t, err, assert.AnError, "a failed commit must not be reported as success")
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	m := &PgTxManager{}

	err := m.inTx(ctx, &fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	m := &PgTxManager{}

	err := m.inTx(ctx, &fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return assert.AnError
	})

	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	m := &PgTxManager{}

	assert.Panics(t, func() {
		_ = m.inTx(ctx, &fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
			panic("boom")
		})
	})
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}
