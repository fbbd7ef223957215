package boltdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionCommitRecordsBookmark(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Write)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	require.NoError(t, err)

	result, err := tx.Run(ctx, "RETURN 1 AS n", nil)
	require.NoError(t, err)
	record, ok, err := result.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, record)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, "bm-commit", session.LastBookmark())

	// committing twice is a no-op, not an error
	require.NoError(t, tx.Commit(ctx))
}

func TestTransactionRollbackDiscardsOpenResult(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Write)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	require.NoError(t, err)

	// leave the result unconsumed; Rollback must discard it rather than hang
	_, err = tx.Run(ctx, "RETURN 1 AS n", nil)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))

	// a second session Run must be able to reuse the pool afterward
	result, err := session.Run(ctx, "RETURN 1 AS n", nil)
	require.NoError(t, err)
	_, ok, err := result.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransactionRunRejectsAfterCommit(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Write)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.Run(ctx, "RETURN 1", nil)
	assert.Error(t, err)
}

func TestSessionRunDiscardsUnconsumedPreviousResult(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Read)
	defer session.Close(ctx)

	first, err := session.Run(ctx, "RETURN 1 AS n", nil)
	require.NoError(t, err)
	// intentionally do not consume `first` before issuing a second Run

	second, err := session.Run(ctx, "RETURN 1 AS n", nil)
	require.NoError(t, err)
	record, ok, err := second.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, record)

	_ = first
}

func TestSessionBeginTransactionRejectsWhenOneAlreadyOpen(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Write)
	defer session.Close(ctx)

	_, err := session.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = session.BeginTransaction(ctx)
	assert.Error(t, err)
}

func TestSessionCloseRollsBackOpenTransaction(t *testing.T) {
	driver := newTestDriver(t)
	defer driver.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session := driver.NewSession("", Write)
	tx, err := session.BeginTransaction(ctx)
	require.NoError(t, err)

	require.NoError(t, session.Close(ctx))

	// the transaction is done; further use must fail rather than reuse the
	// connection session.Close already released
	_, err = tx.Run(ctx, "RETURN 1", nil)
	assert.Error(t, err)
}
