package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
)

func TestSession_CommitPersists(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	a, err := s.CreateRecord(ctx, sess, model.Record{Name: "a"})
	require.NoError(t, err)
	b, err := s.CreateRecord(ctx, sess, model.Record{Name: "b"})
	require.NoError(t, err)
	_, err = s.AddDerivation(ctx, sess, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	assert.False(t, sess.Active())

	records, err := s.ListRecords(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSession_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, sess, model.Record{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, sess.Rollback())

	records, err := s.ListRecords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSession_CloseRollsBackUncommitted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, sess, model.Record{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close(), "second Close is a no-op")

	records, err := s.ListRecords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSession_UseAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Commit())

	_, err = s.CreateRecord(ctx, sess, model.Record{Name: "late"})
	require.Error(t, err)
	assert.True(t, model.IsStorage(err))
	assert.True(t, errors.Is(err, ErrSessionClosed))

	err = sess.Commit()
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestSession_NilIsSafe(t *testing.T) {
	var sess *Session
	assert.NoError(t, sess.Close())
	assert.False(t, sess.Active())
}
