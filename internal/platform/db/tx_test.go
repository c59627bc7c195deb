package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr      error
	commits        int
	rollbacks      int
	rollbackCtxErr error
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	t.rollbackCtxErr = ctx.Err()
	return nil
}

type fakeBeginner struct {
	tx       *fakeTx
	err      error
	lastOpts pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.lastOpts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	called := false
	err := WithTx(context.Background(), b, func(tx pgx.Tx) error {
		called = true
		require.Same(t, b.tx, tx)
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, pgx.RepeatableRead, b.lastOpts.IsoLevel)
	require.Equal(t, 1, b.tx.commits)
	require.Zero(t, b.tx.rollbacks)
}

func TestWithTxLevelRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("insert failed")
	err := WithTxLevel(context.Background(), b, pgx.Serializable, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, pgx.Serializable, b.lastOpts.IsoLevel)
	require.Zero(t, b.tx.commits)
	require.Equal(t, 1, b.tx.rollbacks)
}

func TestWithTxLevelRollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	require.PanicsWithValue(t, "nil map", func() {
		_ = WithTxLevel(context.Background(), b, pgx.ReadCommitted, func(pgx.Tx) error { panic("nil map") })
	})
	require.Zero(t, b.tx.commits)
	require.Equal(t, 1, b.tx.rollbacks)
}

func TestWithTxLevelRollsBackWhenCommitFails(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("could not serialize access")}}
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "platform/db: commit")
	require.Equal(t, 1, b.tx.commits)
	require.Equal(t, 1, b.tx.rollbacks)
}

func TestWithTxLevelRollbackSurvivesCancel(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	ctx, cancel := context.WithCancel(context.Background())
	err := WithTx(ctx, b, func(pgx.Tx) error {
		cancel()
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, b.tx.rollbacks)
	require.NoError(t, b.tx.rollbackCtxErr)
}

func TestWithTxLevelBeginFailure(t *testing.T) {
	b := &fakeBeginner{err: errors.New("pool closed")}
	called := false
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "platform/db: begin")
	require.False(t, called)
}
