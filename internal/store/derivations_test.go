package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
)

func TestAddDerivation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	raw := mustRecord(t, s, "raw", model.KindFact)
	out := mustRecord(t, s, "out", model.KindData)

	edge, err := s.AddDerivation(ctx, nil, raw.ID, out.ID)
	require.NoError(t, err)
	assert.Equal(t, raw.ID, edge.PredecessorID)
	assert.Equal(t, out.ID, edge.SuccessorID)
	assert.Equal(t, testEpoch, edge.CreatedAt)

	succ, err := s.Successors(ctx, nil, raw.ID)
	require.NoError(t, err)
	require.Len(t, succ, 1)
	assert.Equal(t, out.ID, succ[0].ID)

	pred, err := s.Predecessors(ctx, nil, out.ID)
	require.NoError(t, err)
	require.Len(t, pred, 1)
	assert.Equal(t, raw.ID, pred[0].ID)
}

func TestAddDerivation_DuplicateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := testEpoch
	s := createTestStore(t, WithClock(func() time.Time { return now }))
	a := mustRecord(t, s, "a", model.KindRecord)
	b := mustRecord(t, s, "b", model.KindRecord)

	first, err := s.AddDerivation(ctx, nil, a.ID, b.ID)
	require.NoError(t, err)

	now = testEpoch.Add(time.Hour)
	second, err := s.AddDerivation(ctx, nil, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "existing edge keeps its timestamp")

	edges, err := s.ListDerivations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestAddDerivation_FactSuccessorUnsupported(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	a := mustRecord(t, s, "a", model.KindData)
	fact := mustRecord(t, s, "fact", model.KindFact)

	_, err := s.AddDerivation(ctx, nil, a.ID, fact.ID)
	require.Error(t, err)
	assert.True(t, model.IsUnsupportedOperation(err), "got %v", err)

	edges, err := s.ListDerivations(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestAddDerivation_MissingEndpoint(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	a := mustRecord(t, s, "a", model.KindData)

	_, err := s.AddDerivation(ctx, nil, 99, a.ID)
	assert.True(t, model.IsReferential(err), "missing predecessor: %v", err)

	_, err = s.AddDerivation(ctx, nil, a.ID, 99)
	assert.True(t, model.IsReferential(err), "missing successor: %v", err)
}

func TestAddDerivation_CyclesAreStored(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	a := mustRecord(t, s, "a", model.KindData)
	b := mustRecord(t, s, "b", model.KindData)

	_, err := s.AddDerivation(ctx, nil, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.AddDerivation(ctx, nil, b.ID, a.ID)
	require.NoError(t, err)

	edges, err := s.ListDerivations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestSuccessors_OrderedByID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	root := mustRecord(t, s, "root", model.KindFact)
	c1 := mustRecord(t, s, "c1", model.KindData)
	c2 := mustRecord(t, s, "c2", model.KindData)
	c3 := mustRecord(t, s, "c3", model.KindData)

	for _, c := range []model.Record{c3, c1, c2} {
		_, err := s.AddDerivation(ctx, nil, root.ID, c.ID)
		require.NoError(t, err)
	}

	succ, err := s.Successors(ctx, nil, root.ID)
	require.NoError(t, err)
	require.Len(t, succ, 3)
	assert.Equal(t, []int64{c1.ID, c2.ID, c3.ID}, []int64{succ[0].ID, succ[1].ID, succ[2].ID})
}
