package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
)

func TestCreateAction_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	action, err := s.CreateAction(ctx, nil, model.InvalidationAction{
		Name:    "notify",
		Command: "echo",
		Params:  model.ShellParams("{name}", "invalid"),
	})
	require.NoError(t, err)
	assert.Equal(t, "inv-1", action.ID)
	assert.Equal(t, model.ActionShell, action.Type, "empty type defaults to shell")

	got, found, err := s.GetAction(ctx, nil, action.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, action, got)

	args, err := got.Args()
	require.NoError(t, err)
	assert.Equal(t, model.Array{model.String("{name}"), model.String("invalid")}, args)
}

func TestCreateAction_Rejects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.CreateAction(ctx, nil, model.InvalidationAction{Name: "x"})
	assert.True(t, model.IsInvalidArgument(err), "missing command: %v", err)

	_, err = s.CreateAction(ctx, nil, model.InvalidationAction{
		Name:    "x",
		Command: "echo",
		Params:  model.Object{"args": model.String("not an array")},
	})
	assert.True(t, model.IsInvalidArgument(err), "args not an array: %v", err)
}

func TestCreateAction_UnknownTypeIsStored(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	action, err := s.CreateAction(ctx, nil, model.InvalidationAction{Name: "x", Type: "carrier_pigeon", Command: "coo"})
	require.NoError(t, err)

	got, _, err := s.GetAction(ctx, nil, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionType("carrier_pigeon"), got.Type)
}

func TestGetAction_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, found, err := s.GetAction(context.Background(), nil, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetRecordAction(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := mustRecord(t, s, "r", model.KindData)
	action, err := s.CreateAction(ctx, nil, model.InvalidationAction{Name: "n", Command: "true"})
	require.NoError(t, err)

	bound, err := s.SetRecordAction(ctx, nil, rec.ID, action.ID)
	require.NoError(t, err)
	assert.Equal(t, action.ID, bound.ActionID)

	cleared, err := s.SetRecordAction(ctx, nil, rec.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.ActionID)

	_, err = s.SetRecordAction(ctx, nil, rec.ID, "missing")
	assert.True(t, model.IsReferential(err))

	_, err = s.SetRecordAction(ctx, nil, 404, action.ID)
	assert.True(t, model.IsReferential(err))
}

func TestListActions_OrderedByName(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.CreateAction(ctx, nil, model.InvalidationAction{Name: name, Command: "true"})
		require.NoError(t, err)
	}

	actions, err := s.ListActions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "alpha", actions[0].Name)
	assert.Equal(t, "mid", actions[1].Name)
	assert.Equal(t, "zeta", actions[2].Name)
}
