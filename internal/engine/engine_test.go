package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/action"
	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
	"github.com/roach88/braid/internal/testutil"
)

// recordingFirer records the order actions fire in.
type recordingFirer struct {
	fired []int64
	err   error
}

func (f *recordingFirer) Fire(_ context.Context, _ *store.Session, rec model.Record) (action.Result, error) {
	f.fired = append(f.fired, rec.ID)
	if f.err != nil {
		return action.Result{}, f.err
	}
	return action.Result{RecordID: rec.ID, ActionID: rec.ActionID, Fired: true}, nil
}

func setup(t *testing.T, opts ...Option) (*store.Store, *testutil.Graph, *recordingFirer, *Engine) {
	t.Helper()
	s := testutil.NewStore(t)
	g := testutil.NewGraph(t, s)
	firer := &recordingFirer{}
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return s, g, firer, New(s, firer, opts...)
}

// bindAction attaches one shared action to each named record.
func bindAction(t *testing.T, s *store.Store, g *testutil.Graph, names ...string) {
	t.Helper()
	ctx := context.Background()
	act, err := s.CreateAction(ctx, nil, model.InvalidationAction{Name: "notify", Command: "true"})
	require.NoError(t, err)
	for _, name := range names {
		_, err := s.SetRecordAction(ctx, nil, g.ID(name), act.ID)
		require.NoError(t, err)
	}
}

func invalidationOf(t *testing.T, s *store.Store, rec model.Record) model.Invalidation {
	t.Helper()
	require.False(t, rec.IsValid(), "record %d should be invalid", rec.ID)
	inv, found, err := s.GetInvalidation(context.Background(), nil, rec.InvalidationID)
	require.NoError(t, err)
	require.True(t, found)
	return inv
}

func TestInvalidate_Single(t *testing.T) {
	s, g, _, e := setup(t)
	g.Record("A", model.KindData)

	rec, ok, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("bad input"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, rec.IsValid())

	inv := invalidationOf(t, s, rec)
	assert.Equal(t, "bad input", inv.Cause)
	assert.True(t, inv.IsRoot())
}

func TestInvalidate_SecondCallIsNoOp(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Record("A", model.KindData)

	first, ok, err := e.Invalidate(ctx, nil, g.Get("A"), WithCause("first"))
	require.NoError(t, err)
	require.True(t, ok)

	// A stale mirror still reports valid; the engine re-reads.
	stale := model.Record{ID: g.ID("A")}
	again, ok, err := e.Invalidate(ctx, nil, stale, WithCause("second"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, first.InvalidationID, again.InvalidationID)

	counts, err := s.Counts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["invalidations"], "exactly one invalidation")
}

func TestInvalidate_ChainCascadeFlattensRoot(t *testing.T) {
	s, g, _, e := setup(t)
	g.Chain("A", "B", "C")

	a, ok, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("calibration drift"))
	require.NoError(t, err)
	require.True(t, ok)

	b := g.Get("B")
	c := g.Get("C")
	for _, rec := range []model.Record{b, c} {
		inv := invalidationOf(t, s, rec)
		assert.Equal(t, a.InvalidationID, inv.RootID, "record %s root", rec.Name)
		assert.Equal(t, "calibration drift", inv.Cause)
	}
}

func TestInvalidate_WithoutCascade(t *testing.T) {
	_, g, _, e := setup(t)
	g.Chain("A", "B", "C")

	_, ok, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("x"), WithoutCascade())
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, g.Get("A").IsValid())
	assert.True(t, g.Get("B").IsValid())
	assert.True(t, g.Get("C").IsValid())
}

func TestInvalidate_RequiresCauseOrRoot(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Record("A", model.KindData)

	_, _, err := e.Invalidate(ctx, nil, g.Get("A"))
	require.Error(t, err)
	assert.True(t, model.IsInvalidArgument(err))

	assert.True(t, g.Get("A").IsValid())
	counts, err := s.Counts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["invalidations"])
}

func TestInvalidate_RootOnlySynthesizesCause(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Chain("A", "B")

	root, err := s.CreateInvalidation(ctx, nil, "upstream failure", "")
	require.NoError(t, err)

	_, ok, err := e.Invalidate(ctx, nil, g.Get("A"), WithRootInvalidation(root.ID))
	require.NoError(t, err)
	require.True(t, ok)

	for _, name := range []string{"A", "B"} {
		inv := invalidationOf(t, s, g.Get(name))
		assert.Equal(t, root.ID, inv.RootID, "record %s keeps the caller's root", name)
		assert.Equal(t, fmt.Sprintf("cascaded from invalidation %s", root.ID), inv.Cause)
	}
}

func TestInvalidate_UnknownRootIsReferential(t *testing.T) {
	_, g, _, e := setup(t)
	g.Record("A", model.KindData)

	_, _, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithRootInvalidation("nope"))
	assert.True(t, model.IsReferential(err), "got %v", err)
}

func TestInvalidate_MissingRecordIsReferential(t *testing.T) {
	_, _, _, e := setup(t)

	_, _, err := e.Invalidate(context.Background(), nil, model.Record{ID: 42}, WithCause("x"))
	assert.True(t, model.IsReferential(err), "got %v", err)
}

func TestInvalidate_Diamond(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Chain("A", "B", "D")
	g.Chain("A", "C", "D")

	report, err := e.InvalidateReport(ctx, nil, g.ID("A"), WithCause("x"))
	require.NoError(t, err)
	assert.Len(t, report.Invalidated, 4, "D is invalidated once")

	counts, err := s.Counts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts["invalidations"])
	assert.Equal(t, report.Record.InvalidationID, report.RootID)
}

func TestInvalidate_BindingOrderIsDepthFirst(t *testing.T) {
	_, g, _, e := setup(t)
	g.Chain("A", "B", "D")
	g.Chain("A", "C")

	report, err := e.InvalidateReport(context.Background(), nil, g.ID("A"), WithCause("x"))
	require.NoError(t, err)

	var names []string
	for _, rec := range report.Invalidated {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"A", "B", "D", "C"}, names)
}

func TestInvalidate_AlreadyInvalidDescendantIsNotTraversed(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Chain("A", "B", "C")

	b, ok, err := e.Invalidate(ctx, nil, g.Get("B"), WithCause("earlier"), WithoutCascade())
	require.NoError(t, err)
	require.True(t, ok)

	report, err := e.InvalidateReport(ctx, nil, g.ID("A"), WithCause("later"))
	require.NoError(t, err)
	assert.Len(t, report.Invalidated, 1)

	assert.Equal(t, b.InvalidationID, g.Get("B").InvalidationID, "B keeps its first invalidation")
	assert.True(t, g.Get("C").IsValid(), "C is only reachable through the already invalid B")
	assert.Equal(t, "earlier", invalidationOf(t, s, g.Get("B")).Cause)
}

func TestInvalidate_CycleDetected(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Chain("A", "B", "C")
	g.Edge("C", "A")

	sess, err := s.Begin(ctx)
	require.NoError(t, err)

	_, _, err = e.Invalidate(ctx, sess, model.Record{ID: g.ID("A")}, WithCause("x"))
	require.Error(t, err)
	assert.True(t, model.IsCycle(err), "got %v", err)

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, fmt.Sprintf("%d", g.ID("A")), me.Details["record_id"])
	assert.Equal(t, fmt.Sprintf("%v", []int64{g.ID("A"), g.ID("B"), g.ID("C"), g.ID("A")}), me.Details["path"])

	require.NoError(t, sess.Rollback())
	for _, name := range []string{"A", "B", "C"} {
		assert.True(t, g.Get(name).IsValid(), "%s restored by rollback", name)
	}
}

func TestInvalidate_SelfLoop(t *testing.T) {
	_, g, _, e := setup(t)
	g.Record("A", model.KindData)
	g.Edge("A", "A")

	_, _, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("x"))
	assert.True(t, model.IsCycle(err), "got %v", err)
}

func TestInvalidate_CycleNotReachedIsFine(t *testing.T) {
	// B <-> C is a cycle, but invalidating A without cascade never walks it.
	_, g, _, e := setup(t)
	g.Chain("A", "B", "C")
	g.Edge("C", "B")

	_, ok, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("x"), WithoutCascade())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidate_DepthLimit(t *testing.T) {
	_, g, _, e := setup(t, WithMaxDepth(2))
	g.Chain("A", "B", "C", "D")

	_, _, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("x"))
	require.Error(t, err)
	assert.True(t, model.IsLimitExceeded(err), "got %v", err)
	assert.True(t, g.Get("D").IsValid(), "the record past the limit is not touched")
}

func TestInvalidate_DepthAtLimitSucceeds(t *testing.T) {
	_, g, _, e := setup(t, WithMaxDepth(2))
	g.Chain("A", "B", "C")

	report, err := e.InvalidateReport(context.Background(), nil, g.ID("A"), WithCause("x"))
	require.NoError(t, err)
	assert.Len(t, report.Invalidated, 3)
}

func TestInvalidate_DeepChainInSession(t *testing.T) {
	ctx := context.Background()
	s, _, _, e := setup(t)

	const n = 500
	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	var first, prev model.Record
	for i := 0; i < n; i++ {
		rec, err := s.CreateRecord(ctx, sess, model.Record{Name: fmt.Sprintf("r%d", i), Kind: model.KindData})
		require.NoError(t, err)
		if i == 0 {
			first = rec
		} else {
			_, err = s.AddDerivation(ctx, sess, prev.ID, rec.ID)
			require.NoError(t, err)
		}
		prev = rec
	}

	report, err := e.InvalidateReport(ctx, sess, first.ID, WithCause("x"))
	require.NoError(t, err)
	assert.Len(t, report.Invalidated, n)
	require.NoError(t, sess.Commit())

	last, _, err := s.GetRecord(ctx, nil, prev.ID)
	require.NoError(t, err)
	assert.False(t, last.IsValid())
}

func TestInvalidate_ActionsFirePostOrder(t *testing.T) {
	s, g, firer, e := setup(t)
	g.Chain("A", "B", "C")
	bindAction(t, s, g, "A", "B", "C")

	report, err := e.InvalidateReport(context.Background(), nil, g.ID("A"), WithCause("x"))
	require.NoError(t, err)

	assert.Equal(t, []int64{g.ID("C"), g.ID("B"), g.ID("A")}, firer.fired)
	assert.Len(t, report.Actions, 3)
}

func TestInvalidate_ActionFlags(t *testing.T) {
	tests := []struct {
		name string
		opts []InvalidateOption
		want []string
	}{
		{"defaults", nil, []string{"B", "A"}},
		{"without action", []InvalidateOption{WithoutAction()}, []string{"B"}},
		{"without cascaded actions", []InvalidateOption{WithoutCascadedActions()}, []string{"A"}},
		{"neither", []InvalidateOption{WithoutAction(), WithoutCascadedActions()}, nil},
		{"without cascade", []InvalidateOption{WithoutCascade()}, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, g, firer, e := setup(t)
			g.Chain("A", "B")
			bindAction(t, s, g, "A", "B")

			opts := append([]InvalidateOption{WithCause("x")}, tt.opts...)
			_, _, err := e.Invalidate(context.Background(), nil, g.Get("A"), opts...)
			require.NoError(t, err)

			var want []int64
			for _, name := range tt.want {
				want = append(want, g.ID(name))
			}
			assert.Equal(t, want, firer.fired)
		})
	}
}

func TestInvalidate_NoFirer(t *testing.T) {
	s := testutil.NewStore(t)
	g := testutil.NewGraph(t, s)
	g.Chain("A", "B")
	bindAction(t, s, g, "A", "B")
	e := New(s, nil, WithLogger(testutil.DiscardLogger()))

	report, err := e.InvalidateReport(context.Background(), nil, g.ID("A"), WithCause("x"))
	require.NoError(t, err)
	assert.Empty(t, report.Actions)
	assert.Len(t, report.Invalidated, 2)
}

func TestInvalidate_FirerErrorRollsBackWithSession(t *testing.T) {
	ctx := context.Background()
	s, g, firer, e := setup(t)
	g.Chain("A", "B")
	bindAction(t, s, g, "B")
	firer.err = model.NewTemplateError("unresolved placeholder {uri}", "uri")

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	_, _, err = e.Invalidate(ctx, sess, model.Record{ID: g.ID("A")}, WithCause("x"))
	require.Error(t, err)
	assert.True(t, model.IsTemplate(err))
	require.NoError(t, sess.Rollback())

	assert.True(t, g.Get("A").IsValid())
	assert.True(t, g.Get("B").IsValid())
}

func TestInvalidate_PartialWithoutSession(t *testing.T) {
	s, g, firer, e := setup(t)
	g.Chain("A", "B")
	bindAction(t, s, g, "B")
	firer.err = errors.New("boom")

	_, _, err := e.Invalidate(context.Background(), nil, g.Get("A"), WithCause("x"))
	require.Error(t, err)

	assert.False(t, g.Get("A").IsValid(), "one-shot transactions are not rolled back")
	assert.False(t, g.Get("B").IsValid())
}

func TestInvalidate_WithDispatcher(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	g := testutil.NewGraph(t, s)
	g.Chain("X", "Y")

	act, err := s.CreateAction(ctx, nil, model.InvalidationAction{
		Name:    "echo-name",
		Command: "echo",
		Params:  model.ShellParams("{name}"),
	})
	require.NoError(t, err)
	_, err = s.SetRecordAction(ctx, nil, g.ID("X"), act.ID)
	require.NoError(t, err)

	runner := &fakeRunner{code: 1}
	d := action.NewDispatcher(s, action.WithRunner(runner), action.WithLogger(testutil.DiscardLogger()))
	e := New(s, d, WithLogger(testutil.DiscardLogger()))

	report, err := e.InvalidateReport(ctx, nil, g.ID("X"), WithCause("x"))
	require.NoError(t, err, "a failing action does not fail the invalidation")
	require.Len(t, report.Actions, 1)
	assert.Equal(t, []string{"X"}, report.Actions[0].Args)
	assert.Equal(t, 1, report.Actions[0].ExitCode)
	assert.False(t, g.Get("X").IsValid())
	assert.Equal(t, [][]string{{"echo", "X"}}, runner.calls)
}

type fakeRunner struct {
	calls [][]string
	code  int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (int, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.code, nil
}

func TestInvalidate_FactsCascade(t *testing.T) {
	_, g, _, e := setup(t)
	g.Record("config", model.KindFact)
	g.Record("output", model.KindData)
	g.Edge("config", "output")

	_, ok, err := e.Invalidate(context.Background(), nil, g.Get("config"), WithCause("wrong parameter"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, g.Get("output").IsValid())
}

func TestInvalidate_CancelledContext(t *testing.T) {
	s, g, _, e := setup(t)
	g.Chain("A", "B")

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer sess.Close()
	cancel()

	_, _, err = e.Invalidate(ctx, sess, model.Record{ID: g.ID("A")}, WithCause("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidateByTagValue(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Chain("A", "B")
	g.Record("C", model.KindData)
	g.Record("D", model.KindData)

	for _, name := range []string{"A", "B", "C"} {
		_, err := s.AddTag(ctx, nil, g.ID(name), "batch", 7, model.TagInteger)
		require.NoError(t, err)
	}
	_, err := s.AddTag(ctx, nil, g.ID("D"), "batch", "8", model.TagString)
	require.NoError(t, err)

	reports, err := e.InvalidateByTagValue(ctx, nil, "batch", "7", WithCause("bad batch"))
	require.NoError(t, err)
	require.Len(t, reports, 2, "B was already invalidated by A's cascade")
	assert.Equal(t, g.ID("A"), reports[0].Record.ID)
	assert.Equal(t, g.ID("C"), reports[1].Record.ID)

	for _, name := range []string{"A", "B", "C"} {
		assert.False(t, g.Get(name).IsValid(), name)
	}
	assert.True(t, g.Get("D").IsValid())
}

func TestInvalidateByTagValue_RequiresCause(t *testing.T) {
	ctx := context.Background()
	s, g, _, e := setup(t)
	g.Record("A", model.KindData)
	_, err := s.AddTag(ctx, nil, g.ID("A"), "k", "v", model.TagString)
	require.NoError(t, err)

	_, err = e.InvalidateByTagValue(ctx, nil, "k", "v")
	assert.True(t, model.IsInvalidArgument(err))
}
